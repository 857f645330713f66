package notify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/observability/logging"
	"osiri-dispatch/internal/observability/tracing"
	"osiri-dispatch/internal/repository"
)

// Result is the outcome of one ProcessNotification call.
type Result struct {
	Success bool `json:"success"`

	// Skipped means a success log already existed or another worker holds
	// the log; nothing was sent.
	Skipped bool `json:"skipped,omitempty"`

	// InFlight means the log was not pending any more when claimed. The row
	// belongs to another worker and must not be written.
	InFlight bool `json:"in_flight,omitempty"`

	// QuotaExceeded means the daily allowance blocked the send.
	QuotaExceeded bool `json:"quota_exceeded,omitempty"`

	Error         string         `json:"error,omitempty"`
	Retryable     bool           `json:"retryable"`
	Attempts      int            `json:"attempts,omitempty"`
	RateLimitInfo *RateLimitInfo `json:"rate_limit_info,omitempty"`
}

// LogStatus maps the result to the terminal log status.
func (r Result) LogStatus() entity.LogStatus {
	switch {
	case r.Success:
		return entity.LogSuccess
	case r.Skipped, r.QuotaExceeded:
		return entity.LogSkipped
	default:
		return entity.LogFailed
	}
}

// RateLimitInfo describes either the organization quota (Limit, Used,
// ResetAt) or a provider 429 (RetryAfter).
type RateLimitInfo struct {
	Limit      int           `json:"limit,omitempty"`
	Used       int           `json:"used,omitempty"`
	ResetAt    *time.Time    `json:"reset_at,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	NoticeSent bool          `json:"notice_sent,omitempty"`
}

// ChannelError is one structured failure in Stats.Errors.
type ChannelError struct {
	ChannelID string `json:"channel_id"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// Stats is a processor's rolling counter since the last Reset.
type Stats struct {
	Processed   int            `json:"processed"`
	Success     int            `json:"success"`
	Failed      int            `json:"failed"`
	Skipped     int            `json:"skipped"`
	RateLimited int            `json:"rate_limited"`
	Errors      []ChannelError `json:"errors"`
}

// Processor delivers notifications for one platform.
type Processor interface {
	Platform() entity.Platform
	Config() PlatformConfig
	ProcessNotification(ctx context.Context, log *entity.NotificationLog, ch *entity.NotificationChannel) Result
	UpdateStatus(ctx context.Context, logID string, status entity.LogStatus, ch *entity.NotificationChannel, errMsg string) error
	Stats() Stats
	Reset()
}

// Registry selects a processor by platform tag.
type Registry map[entity.Platform]Processor

// NewRegistry indexes processors by their platform.
func NewRegistry(processors ...Processor) Registry {
	r := make(Registry, len(processors))
	for _, p := range processors {
		r[p.Platform()] = p
	}
	return r
}

func (r Registry) Lookup(platform entity.Platform) (Processor, bool) {
	p, ok := r[platform]
	return p, ok
}

// Sender is the platform-specific part of a processor.
type Sender interface {
	SendArticle(ctx context.Context, log *entity.NotificationLog, ch *entity.NotificationChannel) error
	SendLimitNotice(ctx context.Context, ch *entity.NotificationChannel, status *entity.OrganizationSubscriptionStatus) error
}

// processor is the single Processor implementation; platforms differ only
// by Sender and PlatformConfig.
type processor struct {
	platform entity.Platform
	cfg      PlatformConfig
	sender   Sender
	logs     repository.NotificationLogRepository
	quota    *QuotaGuard
	pacer    *pacer
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewProcessor builds a processor for platform around sender.
func NewProcessor(platform entity.Platform, cfg PlatformConfig, sender Sender, logs repository.NotificationLogRepository, quota *QuotaGuard) Processor {
	return newProcessor(platform, cfg, sender, logs, quota)
}

func newProcessor(platform entity.Platform, cfg PlatformConfig, sender Sender, logs repository.NotificationLogRepository, quota *QuotaGuard) *processor {
	return &processor{
		platform: platform,
		cfg:      cfg,
		sender:   sender,
		logs:     logs,
		quota:    quota,
		pacer:    newPacer(cfg.BaseDelay),
		now:      time.Now,
	}
}

func (p *processor) Platform() entity.Platform { return p.platform }
func (p *processor) Config() PlatformConfig    { return p.cfg }

// ProcessNotification runs the quota-aware retry loop for one channel.
// It never panics and never returns an error; failures are in Result.
func (p *processor) ProcessNotification(ctx context.Context, log *entity.NotificationLog, ch *entity.NotificationChannel) (res Result) {
	ctx, span := tracing.GetTracer().Start(ctx, "notify.ProcessNotification",
		trace.WithAttributes(
			attribute.String("platform", string(p.platform)),
			attribute.String("article_id", log.ArticleID),
			attribute.String("channel_id", ch.ID),
		))
	defer span.End()

	logger := logging.FromContext(ctx).With(
		slog.String("platform", string(p.platform)),
		slog.String("article_id", log.ArticleID),
		slog.String("channel_id", ch.ID),
	)
	start := p.now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in notification processor",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			res = Result{Error: fmt.Sprintf("panic: %v", r), Retryable: true}
			p.record(res, &ChannelError{ChannelID: ch.ID, Error: res.Error, Retryable: true})
			span.SetStatus(codes.Error, res.Error)
		}
	}()

	res, chErr := deliverWithQuota(logging.WithLogger(ctx, logger), log, ch, p.delivery(log, ch))
	p.record(res, chErr)

	duration := p.now().Sub(start)
	switch {
	case res.Success:
		RecordSuccess(string(p.platform), duration)
	case res.Skipped:
		RecordSkipped(string(p.platform))
	case res.QuotaExceeded:
		RecordQuotaExceeded(string(p.platform))
	default:
		RecordFailure(string(p.platform), duration)
		span.SetStatus(codes.Error, res.Error)
	}
	span.SetAttributes(attribute.Int("attempts", res.Attempts), attribute.Bool("success", res.Success))
	return res
}

func (p *processor) delivery(log *entity.NotificationLog, ch *entity.NotificationChannel) delivery {
	return delivery{
		platform: p.platform,
		cfg:      p.cfg,
		logs:     p.logs,
		quota:    p.quota,
		sleep:    p.sleep,
		pace: func(ctx context.Context) error {
			return p.pacer.Wait(ctx, ch.ID)
		},
		send: func(ctx context.Context) error {
			return p.sender.SendArticle(ctx, log, ch)
		},
		notifyLimit: func(ctx context.Context, status *entity.OrganizationSubscriptionStatus) error {
			if err := p.pacer.Wait(ctx, ch.ID); err != nil {
				return err
			}
			return p.sender.SendLimitNotice(ctx, ch, status)
		},
	}
}

func (p *processor) record(res Result, chErr *ChannelError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Processed++
	switch {
	case res.Success:
		p.stats.Success++
	case res.Skipped:
		p.stats.Skipped++
	case res.QuotaExceeded:
		p.stats.RateLimited++
	default:
		p.stats.Failed++
	}
	if chErr != nil {
		p.stats.Errors = append(p.stats.Errors, *chErr)
	}
}

// UpdateStatus persists the log's status with channel context. A success
// stamps sent_at; usage was already counted when the send was reserved.
func (p *processor) UpdateStatus(ctx context.Context, logID string, status entity.LogStatus, ch *entity.NotificationChannel, errMsg string) error {
	u := repository.StatusUpdate{
		LogID:          logID,
		Status:         status,
		Recipient:      ch.ChannelIdentifier,
		ErrorMessage:   errMsg,
		Platform:       p.platform,
		OrganizationID: ch.OrganizationID,
	}
	if status == entity.LogSuccess {
		sentAt := p.now().UTC()
		u.SentAt = &sentAt
	}
	return persistenceErr("update notification status", p.logs.UpdateStatus(ctx, u))
}

func (p *processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Errors = append([]ChannelError(nil), p.stats.Errors...)
	return s
}

func (p *processor) Reset() {
	p.mu.Lock()
	p.stats = Stats{}
	p.mu.Unlock()
}
