package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"osiri-dispatch/internal/pkg/config"
	"osiri-dispatch/internal/usecase/notify"
)

// WorkerMetrics embeds the worker_config_* metrics and adds cron job
// metrics:
//
//   - worker_cron_job_runs_total{status}
//   - worker_cron_job_duration_seconds
//   - worker_cron_job_notifications_total{outcome}
//   - worker_cron_job_last_success_timestamp
//   - worker_cron_job_skipped_total
type WorkerMetrics struct {
	*config.ConfigMetrics

	CronJobRunsTotal            *prometheus.CounterVec
	CronJobDurationSeconds      prometheus.Histogram
	CronJobNotificationsTotal   *prometheus.CounterVec
	CronJobLastSuccessTimestamp prometheus.Gauge
	CronJobSkippedTotal         prometheus.Counter
}

// NewWorkerMetrics registers the worker metrics with the default registry.
func NewWorkerMetrics() *WorkerMetrics {
	return newWorkerMetrics(prometheus.DefaultRegisterer)
}

// NewWorkerMetricsWithRegistry registers the worker metrics on reg.
func NewWorkerMetricsWithRegistry(reg prometheus.Registerer) *WorkerMetrics {
	return newWorkerMetrics(reg)
}

func newWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	f := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetricsWithRegistry(reg, "worker"),

		CronJobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_runs_total",
			Help: "Total number of cron job runs by status (success/failure)",
		}, []string{"status"}),

		CronJobDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_cron_job_duration_seconds",
			Help:    "Duration of cron job execution in seconds",
			Buckets: []float64{0.5, 1, 5, 30, 60, 300, 600},
		}),

		CronJobNotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_notifications_total",
			Help: "Notifications handled by cron job runs by outcome",
		}, []string{"outcome"}),

		CronJobLastSuccessTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful cron job run",
		}),

		CronJobSkippedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "worker_cron_job_skipped_total",
			Help: "Cron ticks skipped because the previous run was still active",
		}),
	}
}

func (m *WorkerMetrics) RecordJobRun(status string) {
	m.CronJobRunsTotal.WithLabelValues(status).Inc()
}

func (m *WorkerMetrics) RecordJobDuration(seconds float64) {
	m.CronJobDurationSeconds.Observe(seconds)
}

// RecordBatch adds a finished run's counters.
func (m *WorkerMetrics) RecordBatch(status notify.BatchStatus) {
	m.CronJobNotificationsTotal.WithLabelValues("success").Add(float64(status.SuccessCount))
	m.CronJobNotificationsTotal.WithLabelValues("failed").Add(float64(status.FailedCount))
	m.CronJobNotificationsTotal.WithLabelValues("skipped").Add(float64(status.SkippedCount))
}

func (m *WorkerMetrics) RecordLastSuccess() {
	m.CronJobLastSuccessTimestamp.SetToCurrentTime()
}

func (m *WorkerMetrics) RecordSkippedTick() {
	m.CronJobSkippedTotal.Inc()
}
