package notifier

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("TC-1: should allow request within burst", func(t *testing.T) {
		limiter := NewRateLimiter(10.0, 5)

		if err := limiter.Allow(context.Background()); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("TC-2: should block request exceeding rate limit", func(t *testing.T) {
		// Arrange
		limiter := NewRateLimiter(1.0, 1)
		if err := limiter.Allow(context.Background()); err != nil {
			t.Fatalf("first request should succeed: %v", err)
		}

		// Act
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := limiter.Allow(ctx)

		// Assert
		if err == nil {
			t.Error("expected the second request to exceed the deadline")
		}
	})

	t.Run("TC-3: should respect context cancellation", func(t *testing.T) {
		limiter := NewRateLimiter(0.1, 1)
		_ = limiter.Allow(context.Background())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := limiter.Allow(ctx); err == nil {
			t.Error("expected error for canceled context")
		}
	})

	t.Run("TC-4: non-positive rate should not limit", func(t *testing.T) {
		limiter := NewRateLimiter(0, 0)
		start := time.Now()
		for i := 0; i < 20; i++ {
			if err := limiter.Allow(context.Background()); err != nil {
				t.Fatalf("request %d: %v", i, err)
			}
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("expected no throttling, took %v", elapsed)
		}
	})
}
