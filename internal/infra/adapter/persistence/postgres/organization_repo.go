package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/repository"
)

type OrganizationRepo struct{ db DBTX }

func NewOrganizationRepo(db DBTX) repository.OrganizationRepository {
	return &OrganizationRepo{db: db}
}

func (repo *OrganizationRepo) GetSubscriptionStatus(ctx context.Context, organizationID string) (*entity.OrganizationSubscriptionStatus, error) {
	const query = `
SELECT organization_id, plan_name, base_notifications_per_day,
       notifications_used_this_month, notifications_reset_at, last_limit_notification_at
FROM organization_subscription_status
WHERE organization_id = $1
LIMIT 1`
	var (
		status    entity.OrganizationSubscriptionStatus
		limit     sql.NullInt64
		resetAt   sql.NullTime
		limitSent sql.NullTime
	)
	err := repo.db.QueryRowContext(ctx, query, organizationID).Scan(
		&status.OrganizationID, &status.PlanName, &limit,
		&status.NotificationsUsedThisMonth, &resetAt, &limitSent,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSubscriptionStatus: %w", err)
	}
	status.BaseNotificationsPerDay = nullIntPtr(limit)
	status.NotificationsResetAt = nullTimePtr(resetAt)
	status.LastLimitNotificationAt = nullTimePtr(limitSent)
	return &status, nil
}

// IncrementNotificationCount relies on the row lock taken by UPDATE: concurrent
// callers re-evaluate the WHERE clause against the committed counter, so the
// limit can never be overshot.
func (repo *OrganizationRepo) IncrementNotificationCount(ctx context.Context, organizationID string, limit *int, now, dayStart time.Time) (int, bool, error) {
	const query = `
UPDATE organizations
SET notifications_used_this_month = CASE
        WHEN notifications_reset_at IS NULL OR notifications_reset_at < $3 THEN 1
        ELSE notifications_used_this_month + 1
    END,
    notifications_reset_at = CASE
        WHEN notifications_reset_at IS NULL OR notifications_reset_at < $3 THEN $2
        ELSE notifications_reset_at
    END
WHERE id = $1
  AND ($4::integer IS NULL OR
       CASE
           WHEN notifications_reset_at IS NULL OR notifications_reset_at < $3 THEN 0
           ELSE notifications_used_this_month
       END < $4::integer)
RETURNING notifications_used_this_month`

	var limitArg any
	if limit != nil {
		limitArg = *limit
	}

	var used int
	err := repo.db.QueryRowContext(ctx, query, organizationID, now, dayStart, limitArg).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("IncrementNotificationCount: %w", err)
	}
	return used, true, nil
}

func (repo *OrganizationRepo) DecrementNotificationCount(ctx context.Context, organizationID string, dayStart time.Time) error {
	const query = `
UPDATE organizations
SET notifications_used_this_month = notifications_used_this_month - 1
WHERE id = $1
  AND notifications_used_this_month > 0
  AND notifications_reset_at >= $2`
	if _, err := repo.db.ExecContext(ctx, query, organizationID, dayStart); err != nil {
		return fmt.Errorf("DecrementNotificationCount: %w", err)
	}
	return nil
}

func (repo *OrganizationRepo) UpdateLimitNotification(ctx context.Context, organizationID string, now, dayStart time.Time) (bool, error) {
	const query = `
UPDATE organizations
SET last_limit_notification_at = $2
WHERE id = $1
  AND (last_limit_notification_at IS NULL OR last_limit_notification_at < $3)`
	res, err := repo.db.ExecContext(ctx, query, organizationID, now, dayStart)
	if err != nil {
		return false, fmt.Errorf("UpdateLimitNotification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UpdateLimitNotification: %w", err)
	}
	return n == 1, nil
}
