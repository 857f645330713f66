package notify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/observability/logging"
	"osiri-dispatch/internal/observability/tracing"
	"osiri-dispatch/internal/repository"
)

// Batch error stages.
const (
	StageResolve         = "resolve"
	StagePendingFetch    = "pending_fetch"
	StageValidation      = "validation"
	StageChannelFetch    = "channel_fetch"
	StageLogCreate       = "log_create"
	StageProcessorLookup = "processor_lookup"
	StageDelivery        = "delivery"
	StageStatusUpdate    = "status_update"
	StageBatchProcess    = "batch_process"
	StageCancelled       = "cancelled"
)

const errNoActiveChannels = "No active channels found"

// BatchError is one failure recorded during a run.
type BatchError struct {
	Stage     string `json:"stage"`
	ArticleID string `json:"article_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// PlatformStats are the per-platform counters of one run.
type PlatformStats struct {
	Processed   int `json:"processed"`
	Success     int `json:"success"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	RateLimited int `json:"rate_limited"`
}

// BatchStatus is the outcome of one orchestrator run.
type BatchStatus struct {
	RunID          string                            `json:"run_id"`
	Success        bool                              `json:"success"`
	PendingCreated int                               `json:"pending_created"`
	ProcessedCount int                               `json:"processed_count"`
	SuccessCount   int                               `json:"success_count"`
	FailedCount    int                               `json:"failed_count"`
	SkippedCount   int                               `json:"skipped_count"`
	Platforms      map[entity.Platform]PlatformStats `json:"platforms"`
	Errors         []BatchError                      `json:"errors"`
	StartedAt      time.Time                         `json:"started_at"`
	FinishedAt     time.Time                         `json:"finished_at,omitempty"`
}

func (s *BatchStatus) addError(e BatchError) {
	s.Errors = append(s.Errors, e)
}

func (s *BatchStatus) snapshot() BatchStatus {
	c := *s
	c.Platforms = make(map[entity.Platform]PlatformStats, len(s.Platforms))
	for k, v := range s.Platforms {
		c.Platforms[k] = v
	}
	c.Errors = append([]BatchError(nil), s.Errors...)
	return c
}

// tally folds one channel outcome into the run counters.
func (s *BatchStatus) tally(platform entity.Platform, res Result) {
	ps := s.Platforms[platform]
	ps.Processed++
	s.ProcessedCount++
	switch {
	case res.Success:
		ps.Success++
		s.SuccessCount++
	case res.Skipped:
		ps.Skipped++
		s.SkippedCount++
	case res.QuotaExceeded:
		ps.RateLimited++
		ps.Failed++
		s.FailedCount++
	default:
		ps.Failed++
		s.FailedCount++
	}
	s.Platforms[platform] = ps
}

// ProgressFunc receives a snapshot of the run after every sub-batch.
type ProgressFunc func(BatchStatus)

// PendingCreator creates pending log rows for new content.
type PendingCreator interface {
	CreatePendingNotifications(ctx context.Context) (PendingResult, error)
}

// Orchestrator runs a full batch: resolve, fan out to channels, deliver.
type Orchestrator struct {
	resolver   PendingCreator
	channels   repository.ChannelRepository
	logs       repository.NotificationLogRepository
	processors Registry
	cfg        OrchestratorConfig
	now        func() time.Time
}

func NewOrchestrator(resolver PendingCreator, channels repository.ChannelRepository, logs repository.NotificationLogRepository, processors Registry, cfg OrchestratorConfig) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultOrchestratorConfig().BatchSize
	}
	return &Orchestrator{
		resolver:   resolver,
		channels:   channels,
		logs:       logs,
		processors: processors,
		cfg:        cfg,
		now:        time.Now,
	}
}

// articleBatch is the pending work for one article.
type articleBatch struct {
	articleID string
	pending   map[string]*entity.NotificationLog // by channel id
}

// ProcessNotifications runs one batch. It never panics and never returns an
// error; failures are collected in BatchStatus.Errors.
func (o *Orchestrator) ProcessNotifications(ctx context.Context, onProgress ProgressFunc) (status BatchStatus) {
	status = BatchStatus{
		RunID:     uuid.NewString(),
		Success:   true,
		Platforms: make(map[entity.Platform]PlatformStats),
		StartedAt: o.now(),
	}

	ctx, span := tracing.GetTracer().Start(ctx, "notify.ProcessNotifications")
	span.SetAttributes(attribute.String("run_id", status.RunID))
	logger := logging.WithRunID(logging.FromContext(ctx), status.RunID)
	ctx = logging.WithLogger(ctx, logger)

	incrementActiveBatches()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in notification batch",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			status.Success = false
			status.addError(BatchError{Stage: StageBatchProcess, Error: fmt.Sprint(r)})
		}
		o.resetProcessors()
		status.FinishedAt = o.now()
		duration := status.FinishedAt.Sub(status.StartedAt)
		RecordBatch(status.Success, duration)
		decrementActiveBatches()

		span.SetAttributes(
			attribute.Int("processed", status.ProcessedCount),
			attribute.Int("success", status.SuccessCount),
			attribute.Int("failed", status.FailedCount),
		)
		if !status.Success {
			span.SetStatus(codes.Error, "batch incomplete")
		}
		span.End()

		logger.Info("notification batch finished",
			slog.Bool("success", status.Success),
			slog.Int("processed", status.ProcessedCount),
			slog.Int("succeeded", status.SuccessCount),
			slog.Int("failed", status.FailedCount),
			slog.Int("skipped", status.SkippedCount),
			slog.Int("errors", len(status.Errors)),
			slog.Duration("duration", duration))
	}()

	logger.Info("notification batch started")

	pending, err := o.resolver.CreatePendingNotifications(ctx)
	if err != nil {
		logger.Error("failed to resolve pending notifications", slog.Any("error", err))
		status.Success = false
		status.addError(BatchError{Stage: StageResolve, Error: err.Error(), Retryable: true})
		return status
	}
	status.PendingCreated = pending.Inserted

	batches := append(o.leftovers(ctx, pending.Logs, &status), groupByArticle(pending.Logs)...)
	if len(batches) > o.cfg.BatchSize {
		batches = batches[:o.cfg.BatchSize]
	}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			o.cancel(&status, err)
			return status
		}
		if !o.processArticle(ctx, b, &status, onProgress) {
			return status
		}
	}
	return status
}

// leftovers loads pending rows that earlier runs did not reach, oldest first.
// Articles the resolver just queued are left to the fresh batches.
func (o *Orchestrator) leftovers(ctx context.Context, fresh []*entity.NotificationLog, status *BatchStatus) []articleBatch {
	logger := logging.FromContext(ctx)
	queued := make(map[string]bool, len(fresh))
	for _, l := range fresh {
		queued[l.ArticleID] = true
	}

	ids, err := o.logs.ListPendingArticleIDs(ctx, o.cfg.BatchSize)
	if err != nil {
		logger.Error("failed to list pending articles", slog.Any("error", err))
		status.addError(BatchError{Stage: StagePendingFetch, Error: err.Error(), Retryable: true})
		return nil
	}

	var batches []articleBatch
	for _, id := range ids {
		if queued[id] {
			continue
		}
		rows, err := o.logs.ListPendingForArticle(ctx, id)
		if err != nil {
			logger.Error("failed to load pending rows", slog.String("article_id", id), slog.Any("error", err))
			status.addError(BatchError{Stage: StagePendingFetch, ArticleID: id, Error: err.Error(), Retryable: true})
			continue
		}
		if len(rows) == 0 {
			continue
		}
		batches = append(batches, articleBatch{articleID: id, pending: rows})
	}
	if len(batches) > 0 {
		logger.Info("resuming pending notifications from earlier runs", slog.Int("articles", len(batches)))
	}
	return batches
}

func (o *Orchestrator) cancel(status *BatchStatus, err error) {
	status.Success = false
	status.addError(BatchError{Stage: StageCancelled, Error: err.Error(), Retryable: true})
}

// processArticle delivers one article to its channels. It returns false when
// the run was cancelled.
func (o *Orchestrator) processArticle(ctx context.Context, b articleBatch, status *BatchStatus, onProgress ProgressFunc) bool {
	logger := logging.FromContext(ctx).With(slog.String("article_id", b.articleID))

	channels, err := o.channels.ListActiveForArticle(ctx, b.articleID)
	if err != nil {
		logger.Error("failed to fetch channels", slog.Any("error", err))
		status.addError(BatchError{Stage: StageChannelFetch, ArticleID: b.articleID, Error: err.Error(), Retryable: true})
		return true
	}
	if len(channels) == 0 {
		status.addError(BatchError{Stage: StageChannelFetch, ArticleID: b.articleID, Error: errNoActiveChannels})
		return true
	}

	byPlatform, order := groupByPlatform(channels)
	for _, platform := range order {
		p, ok := o.processors.Lookup(platform)
		if !ok {
			logger.Warn("no processor registered, skipping channels",
				slog.String("platform", string(platform)),
				slog.Int("channels", len(byPlatform[platform])))
			status.addError(BatchError{
				Stage:     StageProcessorLookup,
				ArticleID: b.articleID,
				Platform:  string(platform),
				Error:     fmt.Sprintf("%v: %s", ErrNoProcessor, platform),
			})
			continue
		}
		if !o.processPlatform(ctx, p, b, byPlatform[platform], status, onProgress) {
			return false
		}
	}
	return true
}

type channelWork struct {
	log *entity.NotificationLog
	ch  *entity.NotificationChannel
	res Result
	// statusErr is the UpdateStatus failure, if any.
	statusErr error
}

func (o *Orchestrator) processPlatform(ctx context.Context, p Processor, b articleBatch, channels []*entity.NotificationChannel, status *BatchStatus, onProgress ProgressFunc) bool {
	cfg := p.Config()
	size := cfg.MaxBatchSize
	if size <= 0 {
		size = len(channels)
	}

	for start := 0; start < len(channels); start += size {
		if err := ctx.Err(); err != nil {
			o.cancel(status, err)
			return false
		}
		end := min(start+size, len(channels))

		work := o.prepare(ctx, b, channels[start:end], status)
		o.deliver(ctx, p, work)

		for _, w := range work {
			status.tally(p.Platform(), w.res)
			if !w.res.Success && !w.res.Skipped {
				status.addError(BatchError{
					Stage:     StageDelivery,
					ArticleID: b.articleID,
					ChannelID: w.ch.ID,
					Platform:  string(p.Platform()),
					Error:     w.res.Error,
					Retryable: w.res.Retryable,
				})
			}
			if w.statusErr != nil {
				status.addError(BatchError{
					Stage:     StageStatusUpdate,
					ArticleID: b.articleID,
					ChannelID: w.ch.ID,
					Platform:  string(p.Platform()),
					Error:     w.statusErr.Error(),
					Retryable: true,
				})
			}
		}

		if onProgress != nil {
			onProgress(status.snapshot())
		}
	}
	return true
}

// prepare pairs each channel with its pending log, creating one through the
// idempotent Create when the resolver did not. Channels already delivered
// count as skipped.
func (o *Orchestrator) prepare(ctx context.Context, b articleBatch, channels []*entity.NotificationChannel, status *BatchStatus) []*channelWork {
	work := make([]*channelWork, 0, len(channels))
	for _, ch := range channels {
		if log, ok := b.pending[ch.ID]; ok {
			work = append(work, &channelWork{log: log, ch: ch})
			continue
		}

		// Invalid channels get no new row; an existing pending row above is
		// failed by the processor.
		if err := ch.Validate(); err != nil {
			status.addError(BatchError{
				Stage:     StageValidation,
				ArticleID: b.articleID,
				ChannelID: ch.ID,
				Platform:  string(ch.Platform),
				Error:     err.Error(),
			})
			continue
		}

		log := entity.NewPendingLog(b.articleID, ch)
		outcome, err := o.logs.Create(ctx, log)
		if err != nil {
			status.addError(BatchError{
				Stage:     StageLogCreate,
				ArticleID: b.articleID,
				ChannelID: ch.ID,
				Platform:  string(ch.Platform),
				Error:     err.Error(),
				Retryable: true,
			})
			continue
		}
		if outcome == repository.AlreadySucceeded {
			status.tally(ch.Platform, Result{Skipped: true})
			continue
		}
		work = append(work, &channelWork{log: log, ch: ch})
	}
	return work
}

// deliver runs one sub-batch, at most MaxConcurrent channels at a time.
// Results land in work so counters stay in list order.
func (o *Orchestrator) deliver(ctx context.Context, p Processor, work []*channelWork) {
	limit := p.Config().MaxConcurrent
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, w := range work {
		g.Go(func() error {
			w.res = p.ProcessNotification(ctx, w.log, w.ch)
			if w.res.InFlight {
				return nil
			}
			// Persist the outcome even if the run is being cancelled.
			w.statusErr = p.UpdateStatus(context.WithoutCancel(ctx), w.log.ID, w.res.LogStatus(), w.ch, statusMessage(w.res))
			return nil
		})
	}
	_ = g.Wait()
}

func statusMessage(res Result) string {
	if res.Success {
		return ""
	}
	return res.Error
}

func (o *Orchestrator) resetProcessors() {
	for _, p := range o.processors {
		p.Reset()
	}
}

func groupByArticle(logs []*entity.NotificationLog) []articleBatch {
	var batches []articleBatch
	index := make(map[string]int)
	for _, l := range logs {
		i, ok := index[l.ArticleID]
		if !ok {
			i = len(batches)
			index[l.ArticleID] = i
			batches = append(batches, articleBatch{
				articleID: l.ArticleID,
				pending:   make(map[string]*entity.NotificationLog),
			})
		}
		batches[i].pending[l.ChannelID] = l
	}
	return batches
}

func groupByPlatform(channels []*entity.NotificationChannel) (map[entity.Platform][]*entity.NotificationChannel, []entity.Platform) {
	groups := make(map[entity.Platform][]*entity.NotificationChannel)
	var order []entity.Platform
	for _, ch := range channels {
		if _, ok := groups[ch.Platform]; !ok {
			order = append(order, ch.Platform)
		}
		groups[ch.Platform] = append(groups[ch.Platform], ch)
	}
	return groups, order
}
