package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"osiri-dispatch/internal/observability/slo"
	"osiri-dispatch/internal/usecase/notify"
)

// BatchRunner runs one synchronous dispatch batch.
type BatchRunner interface {
	RunBatch(ctx context.Context, onProgress notify.ProgressFunc) notify.BatchStatus
}

// BatchJob is the cron job body. Overlapping ticks are skipped rather than
// queued.
type BatchJob struct {
	runner  BatchRunner
	timeout time.Duration
	metrics *WorkerMetrics
	logger  *slog.Logger
	running atomic.Bool
	now     func() time.Time
}

// NewBatchJob creates the job. metrics may be nil.
func NewBatchJob(runner BatchRunner, timeout time.Duration, metrics *WorkerMetrics, logger *slog.Logger) *BatchJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchJob{runner: runner, timeout: timeout, metrics: metrics, logger: logger, now: time.Now}
}

// Run executes one batch bounded by the job timeout. It is safe to call from
// the cron goroutine and from tests.
func (j *BatchJob) Run(ctx context.Context) (notify.BatchStatus, bool) {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Warn("previous batch still running, skipping tick")
		if j.metrics != nil {
			j.metrics.RecordSkippedTick()
		}
		return notify.BatchStatus{}, false
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := j.now()
	j.logger.Info("dispatch batch started")

	status := j.runner.RunBatch(ctx, func(s notify.BatchStatus) {
		j.logger.Debug("dispatch batch progress",
			slog.String("run_id", s.RunID),
			slog.Int("processed", s.ProcessedCount),
			slog.Int("success", s.SuccessCount),
			slog.Int("failed", s.FailedCount))
	})
	elapsed := j.now().Sub(start)
	slo.RecordBatch(status.SuccessCount, status.FailedCount, elapsed)

	result := "success"
	if !status.Success {
		result = "failure"
	}
	if j.metrics != nil {
		j.metrics.RecordJobRun(result)
		j.metrics.RecordJobDuration(elapsed.Seconds())
		j.metrics.RecordBatch(status)
		if status.Success {
			j.metrics.RecordLastSuccess()
		}
	}

	attrs := []any{
		slog.String("run_id", status.RunID),
		slog.Bool("success", status.Success),
		slog.Int("pending_created", status.PendingCreated),
		slog.Int("processed", status.ProcessedCount),
		slog.Int("sent", status.SuccessCount),
		slog.Int("failed", status.FailedCount),
		slog.Int("skipped", status.SkippedCount),
		slog.Int("errors", len(status.Errors)),
		slog.Duration("duration", elapsed),
	}
	if status.Success {
		j.logger.Info("dispatch batch completed", attrs...)
	} else {
		j.logger.Warn("dispatch batch completed with errors", attrs...)
	}
	return status, true
}
