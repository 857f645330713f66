package config

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigMetricsWithRegistry_Names(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConfigMetricsWithRegistry(reg, "sample")

	m.RecordLoadTimestamp()
	m.RecordValidationError("cron_schedule")
	m.RecordFallback("cron_schedule", "default")
	m.SetFallbackActive(true)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"sample_config_load_timestamp",
		"sample_config_validation_errors_total",
		"sample_config_fallbacks_total",
		"sample_config_fallback_active",
	}, names)
}

func TestNewConfigMetrics_DuplicateNamePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewConfigMetricsWithRegistry(reg, "dup")

	assert.Panics(t, func() { NewConfigMetricsWithRegistry(reg, "dup") })
}

func TestConfigMetrics_Counters(t *testing.T) {
	m := NewConfigMetricsWithRegistry(prometheus.NewRegistry(), "counters")

	m.RecordValidationError("timezone")
	m.RecordValidationError("timezone")
	m.RecordFallback("timezone", "default")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues("timezone")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("timezone")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("health_port")))
}

func TestConfigMetrics_FallbackActive(t *testing.T) {
	m := NewConfigMetricsWithRegistry(prometheus.NewRegistry(), "active")

	m.SetFallbackActive(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbackActive))

	m.SetFallbackActive(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FallbackActive))
}

func TestNewConfigMetrics_DefaultRegistry(t *testing.T) {
	m := NewConfigMetrics("test_default_registry")
	m.RecordLoadTimestamp()

	assert.Greater(t, testutil.ToFloat64(m.LoadTimestamp), float64(0))
}
