package entity

import "time"

// OrganizationSubscriptionStatus is the quota view of an organization:
// plan limit joined with the organization's usage counters.
type OrganizationSubscriptionStatus struct {
	OrganizationID          string
	PlanName                string
	BaseNotificationsPerDay *int // nil means unlimited
	// NotificationsUsedThisMonth is the legacy column name; it holds the
	// count for the day NotificationsResetAt falls on.
	NotificationsUsedThisMonth int
	NotificationsResetAt       *time.Time
	LastLimitNotificationAt    *time.Time
}

// DailyLimit returns the per-day allowance and false when the plan is unlimited.
func (s *OrganizationSubscriptionStatus) DailyLimit() (int, bool) {
	if s == nil || s.BaseNotificationsPerDay == nil {
		return 0, false
	}
	return *s.BaseNotificationsPerDay, true
}

// UsedToday returns the usage counter if it was last reset on now's calendar
// day in loc, otherwise 0.
func (s *OrganizationSubscriptionStatus) UsedToday(now time.Time, loc *time.Location) int {
	if s == nil || s.NotificationsResetAt == nil {
		return 0
	}
	if !SameDay(*s.NotificationsResetAt, now, loc) {
		return 0
	}
	return s.NotificationsUsedThisMonth
}

// ShouldSendLimitNotification reports whether the limit notice has not yet
// been sent on now's calendar day in loc.
func (s *OrganizationSubscriptionStatus) ShouldSendLimitNotification(now time.Time, loc *time.Location) bool {
	if s == nil || s.LastLimitNotificationAt == nil {
		return true
	}
	return !SameDay(*s.LastLimitNotificationAt, now, loc)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
