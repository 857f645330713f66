package repository

import (
	"context"
	"time"

	"osiri-dispatch/internal/domain/entity"
)

// OrganizationRepository reads and updates per-organization quota state.
// Calendar-day boundaries are computed by the caller and passed as dayStart.
type OrganizationRepository interface {
	// GetSubscriptionStatus returns the quota view or (nil, nil) when the organization is unknown.
	GetSubscriptionStatus(ctx context.Context, organizationID string) (*entity.OrganizationSubscriptionStatus, error)

	// IncrementNotificationCount atomically adds one to today's usage.
	// A counter last reset before dayStart restarts at 1. When limit is non-nil
	// the increment only happens if the resulting usage stays <= *limit.
	// Returns the new usage and whether the increment was applied.
	IncrementNotificationCount(ctx context.Context, organizationID string, limit *int, now, dayStart time.Time) (int, bool, error)

	// DecrementNotificationCount gives back one unit of today's usage, never below zero.
	DecrementNotificationCount(ctx context.Context, organizationID string, dayStart time.Time) error

	// UpdateLimitNotification stamps last_limit_notification_at = now unless it
	// is already at or after dayStart. Returns whether this call set it.
	UpdateLimitNotification(ctx context.Context, organizationID string, now, dayStart time.Time) (bool, error)
}
