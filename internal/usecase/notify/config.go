package notify

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"osiri-dispatch/internal/domain/entity"
)

// PlatformConfig drives one platform's dispatcher. It covers both the
// fixed-delay loop (BaseDelay) and the retry/backoff loop (MaxRetries,
// RetryDelay).
type PlatformConfig struct {
	// MaxConcurrent is the number of channels of this platform processed at
	// once inside a sub-batch. 1 keeps delivery sequential.
	MaxConcurrent int `yaml:"max_concurrent"`

	// BaseDelay is the minimum gap between two sends to the same channel.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxRetries is the number of send attempts per notification.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the backoff unit: attempt k waits RetryDelay·2^k.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxBatchSize is the sub-batch size.
	MaxBatchSize int `yaml:"max_batch_size"`
}

// DefaultPlatformConfigs returns the built-in per-platform settings.
func DefaultPlatformConfigs() map[entity.Platform]PlatformConfig {
	return map[entity.Platform]PlatformConfig{
		entity.PlatformSlack: {
			MaxConcurrent: 1,
			BaseDelay:     1 * time.Second,
			MaxRetries:    3,
			RetryDelay:    1 * time.Second,
			MaxBatchSize:  20,
		},
		entity.PlatformDiscord: {
			MaxConcurrent: 1,
			BaseDelay:     500 * time.Millisecond,
			MaxRetries:    3,
			RetryDelay:    1 * time.Second,
			MaxBatchSize:  20,
		},
	}
}

// Validate reports the first invalid field.
func (c PlatformConfig) Validate() error {
	switch {
	case c.MaxConcurrent < 1:
		return fmt.Errorf("max_concurrent must be >= 1, got %d", c.MaxConcurrent)
	case c.MaxRetries < 1:
		return fmt.Errorf("max_retries must be >= 1, got %d", c.MaxRetries)
	case c.MaxBatchSize < 1:
		return fmt.Errorf("max_batch_size must be >= 1, got %d", c.MaxBatchSize)
	case c.BaseDelay < 0:
		return fmt.Errorf("base_delay must not be negative, got %v", c.BaseDelay)
	case c.RetryDelay < 0:
		return fmt.Errorf("retry_delay must not be negative, got %v", c.RetryDelay)
	}
	return nil
}

// platformOverride is one platform's YAML block. Pointer fields tell an
// omitted key apart from an explicit zero such as base_delay: 0.
type platformOverride struct {
	MaxConcurrent *int           `yaml:"max_concurrent"`
	BaseDelay     *time.Duration `yaml:"base_delay"`
	MaxRetries    *int           `yaml:"max_retries"`
	RetryDelay    *time.Duration `yaml:"retry_delay"`
	MaxBatchSize  *int           `yaml:"max_batch_size"`
}

// apply returns base with every field set in o replaced.
func (o platformOverride) apply(base PlatformConfig) PlatformConfig {
	if o.MaxConcurrent != nil {
		base.MaxConcurrent = *o.MaxConcurrent
	}
	if o.BaseDelay != nil {
		base.BaseDelay = *o.BaseDelay
	}
	if o.MaxRetries != nil {
		base.MaxRetries = *o.MaxRetries
	}
	if o.RetryDelay != nil {
		base.RetryDelay = *o.RetryDelay
	}
	if o.MaxBatchSize != nil {
		base.MaxBatchSize = *o.MaxBatchSize
	}
	return base
}

type dispatchFile struct {
	Platforms map[string]platformOverride `yaml:"platforms"`
}

// LoadPlatformConfigs reads per-platform overrides from a YAML file:
//
//	platforms:
//	  slack:
//	    base_delay: 1s
//	    max_retries: 5
//	  discord:
//	    max_concurrent: 2
//
// Omitted fields keep their defaults; an explicit 0 delay disables it. An
// empty path returns the defaults.
func LoadPlatformConfigs(path string) (map[entity.Platform]PlatformConfig, error) {
	configs := DefaultPlatformConfigs()
	if path == "" {
		return configs, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dispatch config: %w", err)
	}
	return parsePlatformConfigs(raw, configs)
}

func parsePlatformConfigs(raw []byte, configs map[entity.Platform]PlatformConfig) (map[entity.Platform]PlatformConfig, error) {
	var file dispatchFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse dispatch config: %w", err)
	}

	for name, override := range file.Platforms {
		platform := entity.Platform(name)
		if !platform.IsKnown() {
			return nil, fmt.Errorf("dispatch config: unknown platform %q", name)
		}
		merged := override.apply(configs[platform])
		if err := merged.Validate(); err != nil {
			return nil, fmt.Errorf("dispatch config %s: %w", name, err)
		}
		configs[platform] = merged
	}
	return configs, nil
}

// ResolverConfig configures the pending-notification resolver.
type ResolverConfig struct {
	// Limit is the number of recent completed translations scanned.
	Limit int

	// RetryFailed lets articles whose only logs are failed be picked up
	// again. Off by default: any existing log suppresses re-creation.
	RetryFailed bool
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{Limit: 50}
}

// OrchestratorConfig configures one batch run.
type OrchestratorConfig struct {
	// BatchSize caps the number of articles handled per run.
	BatchSize int
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{BatchSize: 50}
}
