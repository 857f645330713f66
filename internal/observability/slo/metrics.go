// Package slo tracks the dispatch engine's service level objectives.
package slo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Targets.
const (
	// DeliverySuccessSLO is the minimum ratio of attempted deliveries that
	// must succeed. Quota skips are not attempts.
	DeliverySuccessSLO = 0.99

	// BatchDurationSLO is the longest a scheduled batch should take in seconds.
	BatchDurationSLO = 120.0
)

var (
	// DeliverySuccessRatio is success / (success + failed) of the last batch
	// that attempted at least one delivery.
	DeliverySuccessRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_delivery_success_ratio",
			Help: "Delivery success ratio of the last batch (0-1), target: 0.99",
		},
	)

	BatchDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_batch_duration_seconds",
			Help: "Wall time of the last batch in seconds, target: 120",
		},
	)

	// Breaches counts batches that missed a target, by objective.
	Breaches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slo_breaches_total",
			Help: "Batches that missed a service level objective",
		},
		[]string{"objective"},
	)
)

// RecordBatch updates the gauges from one finished batch and counts breaches.
func RecordBatch(succeeded, failed int, duration time.Duration) {
	BatchDuration.Set(duration.Seconds())
	if duration.Seconds() > BatchDurationSLO {
		Breaches.WithLabelValues("batch_duration").Inc()
	}

	attempted := succeeded + failed
	if attempted == 0 {
		return
	}
	ratio := float64(succeeded) / float64(attempted)
	DeliverySuccessRatio.Set(ratio)
	if ratio < DeliverySuccessSLO {
		Breaches.WithLabelValues("delivery_success").Inc()
	}
}
