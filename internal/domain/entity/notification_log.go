package entity

import "time"

// LogStatus is the delivery state of a NotificationLog.
type LogStatus string

const (
	LogPending    LogStatus = "pending"
	LogProcessing LogStatus = "processing"
	LogSuccess    LogStatus = "success"
	LogFailed     LogStatus = "failed"
	LogSkipped    LogStatus = "skipped"
)

// IsTerminal reports whether no further transition is expected.
func (s LogStatus) IsTerminal() bool {
	switch s {
	case LogSuccess, LogFailed, LogSkipped:
		return true
	}
	return false
}

// NotificationLog records one delivery of an article to a channel.
// Rows are append-only; at most one row per (ArticleID, ChannelID) is ever LogSuccess.
type NotificationLog struct {
	ID             string
	ArticleID      string
	ChannelID      string
	Platform       Platform
	OrganizationID string
	Status         LogStatus
	Recipient      string
	ErrorMessage   *string
	SentAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPendingLog builds the pending row for delivering articleID to ch.
func NewPendingLog(articleID string, ch *NotificationChannel) *NotificationLog {
	return &NotificationLog{
		ArticleID:      articleID,
		ChannelID:      ch.ID,
		Platform:       ch.Platform,
		OrganizationID: ch.OrganizationID,
		Status:         LogPending,
		Recipient:      ch.ChannelIdentifier,
	}
}
