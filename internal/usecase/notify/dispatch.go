package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/infra/notifier"
	"osiri-dispatch/internal/observability/logging"
	"osiri-dispatch/internal/repository"
	"osiri-dispatch/internal/resilience/retry"
)

// delivery carries everything deliverWithQuota needs for one channel.
// Platform behaviour enters only through the send and notifyLimit closures.
type delivery struct {
	platform    entity.Platform
	cfg         PlatformConfig
	logs        repository.NotificationLogRepository
	quota       *QuotaGuard
	send        func(ctx context.Context) error
	notifyLimit func(ctx context.Context, status *entity.OrganizationSubscriptionStatus) error
	pace        func(ctx context.Context) error
	sleep       func(ctx context.Context, d time.Duration) error
}

// deliverWithQuota is the retry-with-quota loop shared by every platform:
//
//  1. skip if (article, channel) already has a success log; fail without
//     retry when the channel itself is invalid
//  2. claim the log (pending to processing); skip if another worker has it
//  3. reserve one unit of the daily allowance; when over, send at most one
//     limit notice per day and stop. Then wait for the channel's pacing slot
//  4. send with exponential backoff (RetryDelay·2^attempt)
//  5. on failure give the reservation back
//
// The returned ChannelError is non-nil for failures that belong in Stats.Errors.
func deliverWithQuota(ctx context.Context, log *entity.NotificationLog, ch *entity.NotificationChannel, d delivery) (Result, *ChannelError) {
	logger := logging.FromContext(ctx)

	fail := func(err error) (Result, *ChannelError) {
		logger.Error("notification processing failed", slog.Any("error", err))
		return Result{Error: err.Error(), Retryable: true},
			&ChannelError{ChannelID: ch.ID, Error: err.Error(), Retryable: true}
	}

	exists, err := d.logs.SuccessExists(ctx, log.ArticleID, ch.ID)
	if err != nil {
		return fail(persistenceErr("check existing success", err))
	}
	if exists {
		logger.Info("notification already delivered, skipping")
		return Result{Skipped: true, Error: ErrAlreadyDelivered.Error()}, nil
	}

	if err := ch.Validate(); err != nil {
		logger.Error("notification channel is misconfigured", slog.Any("error", err))
		return Result{Error: err.Error()},
			&ChannelError{ChannelID: ch.ID, Error: err.Error()}
	}

	if log.ID != "" {
		claimed, err := d.logs.ClaimPending(ctx, repository.StatusUpdate{
			LogID:          log.ID,
			Status:         entity.LogProcessing,
			Recipient:      ch.ChannelIdentifier,
			Platform:       d.platform,
			OrganizationID: ch.OrganizationID,
		})
		if err != nil {
			return fail(persistenceErr("mark processing", err))
		}
		if !claimed {
			logger.Info("notification claimed by another worker, skipping", slog.String("log_id", log.ID))
			return Result{Skipped: true, InFlight: true, Error: ErrDeliveryInProgress.Error()}, nil
		}
	}

	decision, err := d.quota.Reserve(ctx, ch)
	if err != nil {
		return fail(err)
	}
	if !decision.WithinLimit {
		noticeSent := sendLimitNotice(ctx, d, ch, decision)
		logger.Warn("daily notification limit reached",
			slog.String("organization_id", ch.OrganizationID),
			slog.Int("limit", decision.Limit),
			slog.Int("used", decision.Used),
			slog.Bool("notice_sent", noticeSent))
		return Result{
			QuotaExceeded: true,
			Error:         ErrRateLimitExceeded.Error(),
			RateLimitInfo: decision.RateLimitInfo(d.quota.NextReset(), noticeSent),
		}, nil
	}

	release := func() {
		if !decision.Reserved {
			return
		}
		if err := d.quota.Release(context.WithoutCancel(ctx), ch); err != nil {
			logger.Warn("failed to release quota reservation", slog.Any("error", err))
		}
	}
	defer func() {
		if r := recover(); r != nil {
			release()
			panic(r)
		}
	}()

	if d.pace != nil {
		if err := d.pace(ctx); err != nil {
			release()
			return fail(fmt.Errorf("pacing: %w", err))
		}
	}

	var (
		attempts  int
		lastLimit *notifier.RateLimitError
	)
	cfg := retry.DeliveryConfig(d.cfg.MaxRetries, d.cfg.RetryDelay)
	sleep := d.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	cfg.Sleep = func(ctx context.Context, wait time.Duration) error {
		// Honour a provider's Retry-After when it is longer than the backoff.
		if lastLimit != nil && lastLimit.RetryAfter > wait {
			wait = lastLimit.RetryAfter
		}
		return sleep(ctx, wait)
	}
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		RecordRetry(string(d.platform))
		logger.Warn("delivery attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err))
	}

	err = retry.WithBackoff(ctx, cfg, func() error {
		attempts++
		lastLimit = nil
		RecordDispatch(string(d.platform))
		sendErr := d.send(ctx)
		if rl, ok := notifier.AsRateLimit(sendErr); ok {
			lastLimit = rl
		}
		return sendErr
	})
	if err == nil {
		logger.Info("notification delivered", slog.Int("attempt", attempts))
		return Result{Success: true, Attempts: attempts}, nil
	}

	release()

	if errors.Is(err, retry.ErrExhausted) {
		msg := fmt.Sprintf("Failed after %d attempts", attempts)
		logger.Error("notification delivery exhausted retries",
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		res := Result{Error: msg, Retryable: false, Attempts: attempts}
		if lastLimit != nil {
			res.RateLimitInfo = &RateLimitInfo{RetryAfter: lastLimit.RetryAfter}
		}
		return res, &ChannelError{ChannelID: ch.ID, Error: msg, Retryable: false}
	}

	res, chErr := fail(err)
	res.Attempts = attempts
	return res, chErr
}

func sendLimitNotice(ctx context.Context, d delivery, ch *entity.NotificationChannel, decision QuotaDecision) bool {
	if !decision.ShouldNotifyOfLimit || d.notifyLimit == nil {
		return false
	}
	logger := logging.FromContext(ctx)

	won, err := d.quota.ClaimLimitNotice(ctx, ch.OrganizationID)
	if err != nil {
		logger.Warn("failed to claim limit notice", slog.Any("error", err))
		return false
	}
	if !won {
		return false
	}

	if err := d.notifyLimit(ctx, decision.Status); err != nil {
		RecordLimitNotice(string(d.platform), false)
		logger.Warn("failed to send limit notice", slog.Any("error", err))
		return false
	}
	RecordLimitNotice(string(d.platform), true)
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
