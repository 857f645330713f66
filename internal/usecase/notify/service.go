package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/observability/logging"
	"osiri-dispatch/internal/repository"
)

// batchTimeout bounds a fire-and-forget run started by TriggerBatch.
const batchTimeout = 10 * time.Minute

// Service is the entry point the API and worker use to drive notifications.
type Service interface {
	// TriggerBatch starts a batch run in the background and returns
	// immediately.
	//
	// Returns:
	//   - ErrBatchInProgress if a run is already active
	//   - ErrServiceShutdown after Shutdown has been called
	TriggerBatch(ctx context.Context) error

	// RunBatch runs a batch synchronously and returns its status.
	// A run that overlaps another is rejected with a failed status carrying
	// ErrBatchInProgress.
	RunBatch(ctx context.Context, onProgress ProgressFunc) BatchStatus

	// CreatePendingNotifications runs only the resolver.
	CreatePendingNotifications(ctx context.Context) (PendingResult, error)

	// SendToChannel delivers one article to one channel and reports the
	// outcome synchronously, including retry and rate-limit hints.
	//
	// Returns:
	//   - ErrChannelNotFound if the channel does not exist
	//   - ErrChannelInactive if the channel is disabled
	//   - ErrAlreadyDelivered if a success log already exists for the pair
	//   - ErrDeliveryInProgress if another worker holds the pair's pending log
	//   - an entity.ErrValidationFailed error if the channel is misconfigured
	//   - ErrNoProcessor if the channel's platform has no processor
	SendToChannel(ctx context.Context, articleID, channelID string) (SendResult, error)

	// ProcessorStats returns each processor's rolling stats.
	ProcessorStats() map[entity.Platform]Stats

	// Shutdown waits for in-flight runs until ctx is done.
	Shutdown(ctx context.Context) error
}

// SendResult is the synchronous outcome of SendToChannel.
type SendResult struct {
	LogID         string         `json:"log_id"`
	Success       bool           `json:"success"`
	Error         string         `json:"error,omitempty"`
	Retryable     bool           `json:"retryable"`
	RateLimitInfo *RateLimitInfo `json:"rate_limit_info,omitempty"`
}

type service struct {
	orchestrator *Orchestrator
	resolver     PendingCreator
	channels     repository.ChannelRepository
	logs         repository.NotificationLogRepository
	processors   Registry

	// sends collapses concurrent single sends of the same pair.
	sends singleflight.Group

	running        atomic.Bool
	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewService wires the resolver, orchestrator and processors together.
func NewService(resolver PendingCreator, orchestrator *Orchestrator, channels repository.ChannelRepository, logs repository.NotificationLogRepository, processors Registry) Service {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	return &service{
		orchestrator:   orchestrator,
		resolver:       resolver,
		channels:       channels,
		logs:           logs,
		processors:     processors,
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}
}

func (s *service) TriggerBatch(ctx context.Context) error {
	if s.shutdownCtx.Err() != nil {
		return ErrServiceShutdown
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrBatchInProgress
	}

	// The caller's request context ends with the response; keep its values only.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), batchTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in background batch run",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
		}()

		stop := context.AfterFunc(s.shutdownCtx, cancel)
		defer stop()

		status := s.orchestrator.ProcessNotifications(runCtx, nil)
		slog.Info("Background batch run finished",
			slog.String("run_id", status.RunID),
			slog.Bool("success", status.Success),
			slog.Int("processed", status.ProcessedCount))
	}()
	return nil
}

func (s *service) RunBatch(ctx context.Context, onProgress ProgressFunc) BatchStatus {
	if !s.running.CompareAndSwap(false, true) {
		return BatchStatus{
			Success: false,
			Errors:  []BatchError{{Stage: StageBatchProcess, Error: ErrBatchInProgress.Error()}},
		}
	}
	defer s.running.Store(false)

	s.wg.Add(1)
	defer s.wg.Done()
	return s.orchestrator.ProcessNotifications(ctx, onProgress)
}

func (s *service) CreatePendingNotifications(ctx context.Context) (PendingResult, error) {
	return s.resolver.CreatePendingNotifications(ctx)
}

func (s *service) SendToChannel(ctx context.Context, articleID, channelID string) (SendResult, error) {
	v, err, shared := s.sends.Do(articleID+"/"+channelID, func() (interface{}, error) {
		return s.sendToChannel(ctx, articleID, channelID)
	})
	if shared {
		logging.FromContext(ctx).Debug("single send shared with a concurrent caller",
			slog.String("article_id", articleID),
			slog.String("channel_id", channelID))
	}
	return v.(SendResult), err
}

func (s *service) sendToChannel(ctx context.Context, articleID, channelID string) (SendResult, error) {
	logger := logging.FromContext(ctx).With(
		slog.String("article_id", articleID),
		slog.String("channel_id", channelID))

	ch, err := s.channels.Get(ctx, channelID)
	if err != nil {
		return SendResult{}, persistenceErr("get channel", err)
	}
	if ch == nil {
		return SendResult{}, fmt.Errorf("%s: %w", channelID, ErrChannelNotFound)
	}
	if !ch.IsActive {
		return SendResult{}, ErrChannelInactive
	}
	if err := ch.Validate(); err != nil {
		return SendResult{}, fmt.Errorf("%s: %w", channelID, err)
	}
	p, ok := s.processors.Lookup(ch.Platform)
	if !ok {
		return SendResult{}, fmt.Errorf("%w: %s", ErrNoProcessor, ch.Platform)
	}

	log, err := s.pendingLog(ctx, articleID, ch)
	if err != nil {
		return SendResult{}, err
	}

	res := p.ProcessNotification(ctx, log, ch)
	if res.InFlight {
		return SendResult{LogID: log.ID}, ErrDeliveryInProgress
	}
	if res.Skipped {
		return SendResult{LogID: log.ID}, ErrAlreadyDelivered
	}
	if err := p.UpdateStatus(context.WithoutCancel(ctx), log.ID, res.LogStatus(), ch, statusMessage(res)); err != nil {
		logger.Error("failed to update notification status", slog.Any("error", err))
	}

	return SendResult{
		LogID:         log.ID,
		Success:       res.Success,
		Error:         res.Error,
		Retryable:     res.Retryable,
		RateLimitInfo: res.RateLimitInfo,
	}, nil
}

// pendingLog reuses the pair's pending row when there is one, otherwise
// creates it idempotently.
func (s *service) pendingLog(ctx context.Context, articleID string, ch *entity.NotificationChannel) (*entity.NotificationLog, error) {
	pending, err := s.logs.ListPendingForArticle(ctx, articleID)
	if err != nil {
		return nil, persistenceErr("list pending logs", err)
	}
	if log, ok := pending[ch.ID]; ok {
		return log, nil
	}

	log := entity.NewPendingLog(articleID, ch)
	outcome, err := s.logs.Create(ctx, log)
	if err != nil {
		return nil, persistenceErr("create notification log", err)
	}
	if outcome == repository.AlreadySucceeded {
		return nil, ErrAlreadyDelivered
	}
	return log, nil
}

func (s *service) ProcessorStats() map[entity.Platform]Stats {
	stats := make(map[entity.Platform]Stats, len(s.processors))
	for platform, p := range s.processors {
		stats[platform] = p.Stats()
	}
	return stats
}

func (s *service) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down notify service")

	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Notify service shutdown complete")
		return nil
	case <-ctx.Done():
		slog.Warn("Notify service shutdown timeout")
		return ctx.Err()
	}
}

// IsClientError reports whether err is caused by the caller's input rather
// than a failure of the service.
func IsClientError(err error) bool {
	return errors.Is(err, entity.ErrNotFound) ||
		errors.Is(err, ErrAlreadyDelivered) ||
		errors.Is(err, ErrDeliveryInProgress) ||
		errors.Is(err, ErrChannelInactive) ||
		errors.Is(err, entity.ErrValidationFailed) ||
		errors.Is(err, ErrBatchInProgress)
}
