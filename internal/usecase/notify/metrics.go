package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the dispatch engine
var (
	// notificationDispatchedTotal counts delivery attempts handed to a processor
	notificationDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatched_total",
			Help: "Total number of notifications dispatched",
		},
		[]string{"platform"},
	)

	// notificationSentTotal tracks processor outcomes
	notificationSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_sent_total",
			Help: "Total number of notifications processed by outcome",
		},
		[]string{"platform", "status"}, // status: success|failure|skipped|quota_exceeded
	)

	// notificationDuration tracks the time from first attempt to final outcome
	notificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_duration_seconds",
			Help:    "Notification delivery duration in seconds, including retries",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"platform"},
	)

	// notificationRetriesTotal counts backoff waits
	notificationRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Total number of delivery retries",
		},
		[]string{"platform"},
	)

	// notificationLimitNoticesTotal counts "daily limit reached" messages
	notificationLimitNoticesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_limit_notices_total",
			Help: "Total number of daily-limit notices sent",
		},
		[]string{"platform", "status"}, // status: sent|failed
	)

	// slackTokenRefreshTotal counts OAuth refresh grants
	slackTokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_token_refresh_total",
			Help: "Total number of Slack token refreshes",
		},
		[]string{"status"}, // status: success|failure
	)

	// batchRunsTotal counts orchestrator runs
	batchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_batch_runs_total",
			Help: "Total number of notification batch runs",
		},
		[]string{"status"}, // status: success|partial
	)

	// batchDuration tracks orchestrator run duration
	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_batch_duration_seconds",
			Help:    "Notification batch duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// pendingCreatedTotal counts pending log rows inserted by the resolver
	pendingCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_pending_created_total",
			Help: "Total number of pending notification logs created",
		},
	)

	// activeBatches is 1 while a batch is running
	activeBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_active_batches",
			Help: "Number of notification batches currently running",
		},
	)
)

// RecordDispatch records a delivery attempt for platform.
func RecordDispatch(platform string) {
	notificationDispatchedTotal.WithLabelValues(platform).Inc()
}

// RecordSuccess records a delivered notification and its duration.
func RecordSuccess(platform string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(platform, "success").Inc()
	notificationDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordFailure records a notification that exhausted its attempts or hit a store error.
func RecordFailure(platform string, duration time.Duration) {
	notificationSentTotal.WithLabelValues(platform, "failure").Inc()
	notificationDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordSkipped records a notification skipped because it was already delivered.
func RecordSkipped(platform string) {
	notificationSentTotal.WithLabelValues(platform, "skipped").Inc()
}

// RecordQuotaExceeded records a notification blocked by the daily allowance.
func RecordQuotaExceeded(platform string) {
	notificationSentTotal.WithLabelValues(platform, "quota_exceeded").Inc()
}

// RecordRetry records one backoff wait.
func RecordRetry(platform string) {
	notificationRetriesTotal.WithLabelValues(platform).Inc()
}

// RecordLimitNotice records the outcome of a daily-limit notice.
func RecordLimitNotice(platform string, sent bool) {
	status := "sent"
	if !sent {
		status = "failed"
	}
	notificationLimitNoticesTotal.WithLabelValues(platform, status).Inc()
}

// RecordTokenRefresh records a Slack token refresh.
func RecordTokenRefresh(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	slackTokenRefreshTotal.WithLabelValues(status).Inc()
}

// RecordBatch records a finished orchestrator run.
func RecordBatch(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "partial"
	}
	batchRunsTotal.WithLabelValues(status).Inc()
	batchDuration.Observe(duration.Seconds())
}

// RecordPendingCreated adds n inserted pending rows.
func RecordPendingCreated(n int) {
	pendingCreatedTotal.Add(float64(n))
}

func incrementActiveBatches() { activeBatches.Inc() }
func decrementActiveBatches() { activeBatches.Dec() }
