package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// authRequestsTotal counts token checks by role and result
	// (success | unauthorized | forbidden).
	authRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_api_auth_requests_total",
			Help: "Bearer token checks on the dispatch API by role and result",
		},
		[]string{"role", "result"},
	)

	authDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_api_auth_duration_seconds",
			Help:    "Time spent validating bearer tokens",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)

	forbiddenAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_api_forbidden_attempts_total",
			Help: "Requests rejected because the role lacks permission",
		},
		[]string{"role", "method"},
	)
)

// RecordAuthRequest records a token check outcome.
func RecordAuthRequest(role, result string) {
	authRequestsTotal.WithLabelValues(role, result).Inc()
}

// RecordAuthDuration records how long validation took.
func RecordAuthDuration(seconds float64) {
	authDuration.Observe(seconds)
}

// RecordForbiddenAttempt records a permission denial.
func RecordForbiddenAttempt(role, method string) {
	forbiddenAttempts.WithLabelValues(role, method).Inc()
}
