// Package retry runs an operation again with exponential backoff until it
// succeeds, fails permanently, runs out of attempts or the context ends.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrExhausted is wrapped into the error returned by WithBackoff when every
// attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Config controls one WithBackoff call.
type Config struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int

	// InitialDelay is the wait after the first failed attempt.
	InitialDelay time.Duration

	// MaxDelay caps the wait; zero means uncapped.
	MaxDelay time.Duration

	Multiplier float64

	// JitterFraction adds up to this fraction of the wait at random (0-1).
	JitterFraction float64

	// Retryable reports whether err is worth another attempt. When nil every
	// error except context cancellation is retried.
	Retryable func(error) bool

	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry runs before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig is three attempts starting at one second, doubling, capped at
// 30 seconds with 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// DeliveryConfig returns the backoff used for outbound chat messages.
// After failed attempt k the caller waits retryDelay·2^k; the wait is neither
// capped nor jittered, and every error is retried.
func DeliveryConfig(maxAttempts int, retryDelay time.Duration) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: 2 * retryDelay,
		Multiplier:   2.0,
		Retryable:    func(error) bool { return true },
	}
}

// WithBackoff calls fn until it returns nil. A non-retryable error is
// returned unchanged; running out of attempts returns an error wrapping both
// ErrExhausted and the last failure; a cancelled wait returns the context
// error.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = notCancelled
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}
		delay = nextDelay(delay, cfg)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

func notCancelled(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func nextDelay(delay time.Duration, cfg Config) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	next := time.Duration(float64(delay) * multiplier)
	if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return addJitter(next, cfg.JitterFraction)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func addJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	fraction = min(fraction, 1.0)
	// #nosec G404 -- jitter does not need cryptographic randomness.
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
