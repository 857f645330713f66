package notify

import (
	"context"
	"time"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/repository"
)

// QuotaDecision is the Quota Guard's verdict for one organization.
type QuotaDecision struct {
	WithinLimit         bool
	ShouldNotifyOfLimit bool

	// Unlimited is true when the plan has no daily allowance.
	Unlimited bool
	Limit     int
	Used      int

	// Reserved is true when Reserve consumed one unit that Release must
	// give back if delivery fails.
	Reserved bool

	// Status is the subscription row the decision was based on (may be nil).
	Status *entity.OrganizationSubscriptionStatus
}

// RateLimitInfo builds the hint returned to callers of a blocked send.
func (d QuotaDecision) RateLimitInfo(resetAt time.Time, noticeSent bool) *RateLimitInfo {
	return &RateLimitInfo{
		Limit:      d.Limit,
		Used:       d.Used,
		ResetAt:    &resetAt,
		NoticeSent: noticeSent,
	}
}

// QuotaGuard enforces the per-organization daily allowance.
// Days are calendar days in loc.
type QuotaGuard struct {
	orgs repository.OrganizationRepository
	loc  *time.Location
	now  func() time.Time
}

func NewQuotaGuard(orgs repository.OrganizationRepository, loc *time.Location) *QuotaGuard {
	if loc == nil {
		loc = time.UTC
	}
	return &QuotaGuard{orgs: orgs, loc: loc, now: time.Now}
}

func (g *QuotaGuard) today() (now, dayStart time.Time) {
	now = g.now()
	return now, entity.StartOfDay(now, g.loc)
}

// NextReset is the start of the next calendar day.
func (g *QuotaGuard) NextReset() time.Time {
	_, dayStart := g.today()
	return dayStart.AddDate(0, 0, 1)
}

// CheckLimit is the read-only check: absent limit means unlimited, usage
// counts only if it was reset today, and a limit notice is due when over
// the limit and none was sent today.
func (g *QuotaGuard) CheckLimit(ctx context.Context, ch *entity.NotificationChannel) (QuotaDecision, error) {
	status, err := g.orgs.GetSubscriptionStatus(ctx, ch.OrganizationID)
	if err != nil {
		return QuotaDecision{}, persistenceErr("get subscription status", err)
	}
	limit, limited := status.DailyLimit()
	if !limited {
		return QuotaDecision{WithinLimit: true, Unlimited: true, Status: status}, nil
	}

	now, _ := g.today()
	used := status.UsedToday(now, g.loc)
	d := QuotaDecision{
		WithinLimit: used < limit,
		Limit:       limit,
		Used:        used,
		Status:      status,
	}
	if !d.WithinLimit {
		d.ShouldNotifyOfLimit = status.ShouldSendLimitNotification(now, g.loc)
	}
	return d, nil
}

// Reserve claims one unit of today's allowance with a single conditional
// update, so concurrent runs cannot both pass the check and overshoot.
func (g *QuotaGuard) Reserve(ctx context.Context, ch *entity.NotificationChannel) (QuotaDecision, error) {
	d, err := g.CheckLimit(ctx, ch)
	if err != nil {
		return d, err
	}
	// Organizations without a subscription row have nothing to count against.
	if d.Status == nil {
		return d, nil
	}
	if !d.Unlimited && !d.WithinLimit {
		return d, nil
	}

	now, dayStart := g.today()
	var limitArg *int
	if !d.Unlimited {
		limit := d.Limit
		limitArg = &limit
	}
	used, applied, err := g.orgs.IncrementNotificationCount(ctx, ch.OrganizationID, limitArg, now, dayStart)
	if err != nil {
		return d, persistenceErr("increment notification count", err)
	}
	if !applied {
		// Lost the race for the last unit.
		d.WithinLimit = false
		d.Used = d.Limit
		d.ShouldNotifyOfLimit = d.Status.ShouldSendLimitNotification(now, g.loc)
		return d, nil
	}
	d.WithinLimit = true
	d.Reserved = true
	d.Used = used
	return d, nil
}

// Release gives back a reservation whose delivery failed.
func (g *QuotaGuard) Release(ctx context.Context, ch *entity.NotificationChannel) error {
	_, dayStart := g.today()
	return persistenceErr("decrement notification count",
		g.orgs.DecrementNotificationCount(ctx, ch.OrganizationID, dayStart))
}

// ClaimLimitNotice stamps last_limit_notification_at unless it is already
// today. Only the caller that gets true may send the notice.
func (g *QuotaGuard) ClaimLimitNotice(ctx context.Context, organizationID string) (bool, error) {
	now, dayStart := g.today()
	won, err := g.orgs.UpdateLimitNotification(ctx, organizationID, now, dayStart)
	if err != nil {
		return false, persistenceErr("update limit notification", err)
	}
	return won, nil
}
