package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/pkg/config"
	"osiri-dispatch/internal/usecase/notify"
)

// WorkerConfig holds the dispatch worker's settings.
//
// Every field has a default and LoadConfigFromEnv never fails: an invalid
// environment value is replaced by its default, logged and counted in the
// worker_config_* metrics.
type WorkerConfig struct {
	// CronSchedule is a five-field cron expression. Default "*/5 * * * *".
	CronSchedule string

	// Timezone is the IANA zone the schedule is evaluated in. Default "UTC".
	Timezone string

	// BatchTimeout bounds one batch run (1m-1h). Default 10m.
	BatchTimeout time.Duration

	// HealthPort serves /health, /health/ready and /metrics (1024-65535).
	// Default 9091.
	HealthPort int

	// BatchSize caps the articles handled per run (1-1000). Default 50.
	BatchSize int

	// ChannelBatchSize overrides every platform's sub-batch size when set
	// (1-500). Default 20.
	ChannelBatchSize int

	// ResolverLimit is the number of recent translations the resolver scans
	// (1-1000). Default 50.
	ResolverLimit int

	// ResolverRetryFailed lets articles with only failed logs be re-queued.
	ResolverRetryFailed bool

	// QuotaTimezone is the zone whose midnight resets daily quotas.
	// Default "UTC".
	QuotaTimezone string

	// DispatchConfigPath optionally points to a YAML file of per-platform
	// overrides.
	DispatchConfigPath string
}

// DefaultConfig returns the built-in worker settings.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule:     "*/5 * * * *",
		Timezone:         "UTC",
		BatchTimeout:     10 * time.Minute,
		HealthPort:       9091,
		BatchSize:        50,
		ChannelBatchSize: 20,
		ResolverLimit:    50,
		QuotaTimezone:    "UTC",
	}
}

// Validate reports every invalid field at once.
func (c *WorkerConfig) Validate() error {
	var errs []error
	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	check("cron schedule", config.ValidateCronSchedule(c.CronSchedule))
	check("timezone", config.ValidateTimezone(c.Timezone))
	check("batch timeout", config.ValidateDuration(c.BatchTimeout, time.Minute, time.Hour))
	check("health port", config.ValidateIntRange(c.HealthPort, 1024, 65535))
	check("batch size", config.ValidateIntRange(c.BatchSize, 1, 1000))
	check("channel batch size", config.ValidateIntRange(c.ChannelBatchSize, 1, 500))
	check("resolver limit", config.ValidateIntRange(c.ResolverLimit, 1, 1000))
	check("quota timezone", config.ValidateTimezone(c.QuotaTimezone))

	return errors.Join(errs...)
}

// Location returns the schedule's time zone, UTC if it cannot be loaded.
func (c *WorkerConfig) Location() *time.Location {
	return loadLocation(c.Timezone)
}

// QuotaLocation returns the zone whose midnight resets quotas.
func (c *WorkerConfig) QuotaLocation() *time.Location {
	return loadLocation(c.QuotaTimezone)
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolverConfig maps the worker settings onto the resolver.
func (c *WorkerConfig) ResolverConfig() notify.ResolverConfig {
	return notify.ResolverConfig{Limit: c.ResolverLimit, RetryFailed: c.ResolverRetryFailed}
}

// OrchestratorConfig maps the worker settings onto the orchestrator.
func (c *WorkerConfig) OrchestratorConfig() notify.OrchestratorConfig {
	return notify.OrchestratorConfig{BatchSize: c.BatchSize}
}

// PlatformConfigs loads the per-platform settings from DispatchConfigPath
// and applies ChannelBatchSize as each platform's sub-batch size unless the
// file sets one.
func (c *WorkerConfig) PlatformConfigs() (map[entity.Platform]notify.PlatformConfig, error) {
	configs, err := notify.LoadPlatformConfigs(c.DispatchConfigPath)
	if err != nil {
		return nil, err
	}
	defaults := notify.DefaultPlatformConfigs()
	for platform, pc := range configs {
		if pc.MaxBatchSize == defaults[platform].MaxBatchSize {
			pc.MaxBatchSize = c.ChannelBatchSize
			configs[platform] = pc
		}
	}
	return configs, nil
}

// LoadConfigFromEnv reads the worker configuration:
//
//	CRON_SCHEDULE              cron expression        (*/5 * * * *)
//	WORKER_TIMEZONE            IANA zone              (UTC)
//	BATCH_TIMEOUT              duration, 1m-1h        (10m)
//	WORKER_HEALTH_PORT         1024-65535             (9091)
//	NOTIFY_BATCH_SIZE          1-1000                 (50)
//	NOTIFY_CHANNEL_BATCH_SIZE  1-500                  (20)
//	RESOLVER_LIMIT             1-1000                 (50)
//	RESOLVER_RETRY_FAILED      bool                   (false)
//	QUOTA_TIMEZONE             IANA zone              (UTC)
//	DISPATCH_CONFIG_PATH       YAML file path         ("")
//
// The returned error is always nil.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}
	l := config.NewLoader(logger, cm)

	cfg.CronSchedule = config.Track(l, "cron_schedule",
		config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule))
	cfg.Timezone = config.Track(l, "timezone",
		config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone))
	cfg.BatchTimeout = config.Track(l, "batch_timeout",
		config.LoadEnvDuration("BATCH_TIMEOUT", cfg.BatchTimeout, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Minute, time.Hour)
		}))
	cfg.HealthPort = config.Track(l, "health_port",
		config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, intRange(1024, 65535)))
	cfg.BatchSize = config.Track(l, "batch_size",
		config.LoadEnvInt("NOTIFY_BATCH_SIZE", cfg.BatchSize, intRange(1, 1000)))
	cfg.ChannelBatchSize = config.Track(l, "channel_batch_size",
		config.LoadEnvInt("NOTIFY_CHANNEL_BATCH_SIZE", cfg.ChannelBatchSize, intRange(1, 500)))
	cfg.ResolverLimit = config.Track(l, "resolver_limit",
		config.LoadEnvInt("RESOLVER_LIMIT", cfg.ResolverLimit, intRange(1, 1000)))
	cfg.ResolverRetryFailed = config.Track(l, "resolver_retry_failed",
		config.LoadEnvBool("RESOLVER_RETRY_FAILED", cfg.ResolverRetryFailed))
	cfg.QuotaTimezone = config.Track(l, "quota_timezone",
		config.LoadEnvWithFallback("QUOTA_TIMEZONE", cfg.QuotaTimezone, config.ValidateTimezone))
	cfg.DispatchConfigPath = config.LoadEnvString("DISPATCH_CONFIG_PATH", "")

	l.Finish()
	return &cfg, nil
}

func intRange(min, max int) func(int) error {
	return func(v int) error { return config.ValidateIntRange(v, min, max) }
}
