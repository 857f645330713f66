package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Loaded is the outcome of reading one environment variable.
//
// Loading never fails: a value that cannot be parsed or validated is replaced
// by the default and reported in Warning.
type Loaded[T any] struct {
	Value           T
	Warning         string
	FallbackApplied bool
}

func fallback[T any](envKey, raw string, def T, err error) Loaded[T] {
	return Loaded[T]{
		Value:           def,
		Warning:         fmt.Sprintf("Invalid %s='%s': %v, falling back to default '%v'", envKey, raw, err, def),
		FallbackApplied: true,
	}
}

// LoadEnvString returns the variable's value, or defaultValue when it is
// unset or empty. No validation is applied.
func LoadEnvString(envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultValue
}

// LoadEnvWithFallback loads a string and validates it. A nil validator
// accepts any value.
//
//	r := LoadEnvWithFallback("CRON_SCHEDULE", "*/5 * * * *", ValidateCronSchedule)
//	schedule := r.Value
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) Loaded[string] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return Loaded[string]{Value: defaultValue}
	}
	if validator != nil {
		if err := validator(raw); err != nil {
			return fallback(envKey, raw, defaultValue, err)
		}
	}
	return Loaded[string]{Value: raw}
}

// LoadEnvDuration parses a Go duration string ("30s", "10m") and validates it.
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) Loaded[time.Duration] {
	return loadParsed(envKey, defaultValue, time.ParseDuration, validator)
}

// LoadEnvInt parses a base-10 integer and validates it.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) Loaded[int] {
	parse := func(s string) (int, error) {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("invalid integer format")
		}
		return n, nil
	}
	return loadParsed(envKey, defaultValue, parse, validator)
}

// LoadEnvBool accepts the values understood by strconv.ParseBool.
func LoadEnvBool(envKey string, defaultValue bool) Loaded[bool] {
	parse := func(s string) (bool, error) {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, fmt.Errorf("invalid boolean format, expected 'true' or 'false'")
		}
		return b, nil
	}
	return loadParsed(envKey, defaultValue, parse, nil)
}

func loadParsed[T any](envKey string, def T, parse func(string) (T, error), validator func(T) error) Loaded[T] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return Loaded[T]{Value: def}
	}
	v, err := parse(raw)
	if err != nil {
		return fallback(envKey, raw, def, err)
	}
	if validator != nil {
		if err := validator(v); err != nil {
			return fallback(envKey, raw, def, err)
		}
	}
	return Loaded[T]{Value: v}
}

// Loader applies loaded values and accounts for fallbacks: every fallback is
// logged and counted in the component's ConfigMetrics.
type Loader struct {
	logger   *slog.Logger
	metrics  *ConfigMetrics
	warnings []string
}

// NewLoader returns a Loader. metrics may be nil.
func NewLoader(logger *slog.Logger, metrics *ConfigMetrics) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, metrics: metrics}
}

// Track records the outcome of one load for the named field.
func Track[T any](l *Loader, field string, r Loaded[T]) T {
	if r.FallbackApplied {
		l.warnings = append(l.warnings, r.Warning)
		l.logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", r.Warning))
		if l.metrics != nil {
			l.metrics.RecordValidationError(field)
			l.metrics.RecordFallback(field, "default")
		}
	}
	return r.Value
}

// Warnings returns the warnings collected so far.
func (l *Loader) Warnings() []string {
	return l.warnings
}

// Finish publishes the load timestamp and the fallback-active gauge.
func (l *Loader) Finish() {
	if l.metrics == nil {
		return
	}
	l.metrics.SetFallbackActive(len(l.warnings) > 0)
	l.metrics.RecordLoadTimestamp()
}
