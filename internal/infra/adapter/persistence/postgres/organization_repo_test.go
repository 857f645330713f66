package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/infra/adapter/persistence/postgres"
)

var (
	orgNow      = time.Date(2026, 2, 1, 15, 0, 0, 0, time.UTC)
	orgDayStart = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
)

/* ──────────────────────────────── 1. GetSubscriptionStatus ──────────────────────────────── */

func TestOrganizationRepo_GetSubscriptionStatus(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	resetAt := orgNow.Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM organization_subscription_status`)).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"organization_id", "plan_name", "base_notifications_per_day",
			"notifications_used_this_month", "notifications_reset_at", "last_limit_notification_at",
		}).AddRow("org-1", "starter", int64(10), 4, resetAt, nil))

	got, err := postgres.NewOrganizationRepo(db).GetSubscriptionStatus(context.Background(), "org-1")
	require.NoError(t, err)

	limit := 10
	want := &entity.OrganizationSubscriptionStatus{
		OrganizationID: "org-1", PlanName: "starter", BaseNotificationsPerDay: &limit,
		NotificationsUsedThisMonth: 4, NotificationsResetAt: &resetAt,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestOrganizationRepo_GetSubscriptionStatus_Unlimited(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM organization_subscription_status`)).
		WithArgs("org-2").
		WillReturnRows(sqlmock.NewRows([]string{
			"organization_id", "plan_name", "base_notifications_per_day",
			"notifications_used_this_month", "notifications_reset_at", "last_limit_notification_at",
		}).AddRow("org-2", "", nil, 0, nil, nil))

	got, err := postgres.NewOrganizationRepo(db).GetSubscriptionStatus(context.Background(), "org-2")
	require.NoError(t, err)
	_, limited := got.DailyLimit()
	assert.False(t, limited)
}

func TestOrganizationRepo_GetSubscriptionStatus_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM organization_subscription_status`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}))

	got, err := postgres.NewOrganizationRepo(db).GetSubscriptionStatus(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

/* ──────────────────────────────── 2. IncrementNotificationCount ──────────────────────────────── */

func TestOrganizationRepo_IncrementNotificationCount(t *testing.T) {
	tests := []struct {
		name      string
		limit     *int
		limitArg  any
		rows      *sqlmock.Rows
		wantUsed  int
		wantApply bool
	}{
		{
			name:      "under limit",
			limit:     intPtr(10),
			limitArg:  int64(10),
			rows:      sqlmock.NewRows([]string{"notifications_used_this_month"}).AddRow(5),
			wantUsed:  5,
			wantApply: true,
		},
		{
			name:      "limit reached",
			limit:     intPtr(10),
			limitArg:  int64(10),
			rows:      sqlmock.NewRows([]string{"notifications_used_this_month"}),
			wantUsed:  0,
			wantApply: false,
		},
		{
			name:      "unlimited",
			limit:     nil,
			limitArg:  nil,
			rows:      sqlmock.NewRows([]string{"notifications_used_this_month"}).AddRow(120),
			wantUsed:  120,
			wantApply: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, _ := sqlmock.New()
			defer func() { _ = db.Close() }()

			mock.ExpectQuery(regexp.QuoteMeta(`UPDATE organizations`)).
				WithArgs("org-1", orgNow, orgDayStart, tt.limitArg).
				WillReturnRows(tt.rows)

			used, applied, err := postgres.NewOrganizationRepo(db).
				IncrementNotificationCount(context.Background(), "org-1", tt.limit, orgNow, orgDayStart)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsed, used)
			assert.Equal(t, tt.wantApply, applied)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestOrganizationRepo_IncrementNotificationCount_Error(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	dbErr := errors.New("deadlock detected")
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE organizations`)).WillReturnError(dbErr)

	_, applied, err := postgres.NewOrganizationRepo(db).
		IncrementNotificationCount(context.Background(), "org-1", nil, orgNow, orgDayStart)
	assert.ErrorIs(t, err, dbErr)
	assert.False(t, applied)
}

/* ──────────────────────────────── 3. DecrementNotificationCount ──────────────────────────────── */

func TestOrganizationRepo_DecrementNotificationCount(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`SET notifications_used_this_month = notifications_used_this_month - 1`)).
		WithArgs("org-1", orgDayStart).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, postgres.NewOrganizationRepo(db).DecrementNotificationCount(context.Background(), "org-1", orgDayStart))
	assert.NoError(t, mock.ExpectationsWereMet())
}

/* ──────────────────────────────── 4. UpdateLimitNotification ──────────────────────────────── */

func TestOrganizationRepo_UpdateLimitNotification(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"first notice today", 1, true},
		{"already stamped today", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, _ := sqlmock.New()
			defer func() { _ = db.Close() }()

			mock.ExpectExec(regexp.QuoteMeta(`SET last_limit_notification_at = $2`)).
				WithArgs("org-1", orgNow, orgDayStart).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			won, err := postgres.NewOrganizationRepo(db).UpdateLimitNotification(context.Background(), "org-1", orgNow, orgDayStart)
			require.NoError(t, err)
			assert.Equal(t, tt.want, won)
		})
	}
}

func intPtr(i int) *int { return &i }
