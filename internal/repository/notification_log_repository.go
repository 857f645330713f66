package repository

import (
	"context"
	"time"

	"osiri-dispatch/internal/domain/entity"
)

// CreateOutcome tells the caller what Create did.
type CreateOutcome int

const (
	// Created means a new row was inserted.
	Created CreateOutcome = iota
	// AlreadySucceeded means a success row for the pair already existed and nothing was inserted.
	AlreadySucceeded
)

func (o CreateOutcome) String() string {
	if o == AlreadySucceeded {
		return "already_succeeded"
	}
	return "created"
}

// StatusUpdate is the write applied by UpdateStatus.
type StatusUpdate struct {
	LogID          string
	Status         entity.LogStatus
	Recipient      string
	ErrorMessage   string // empty clears the column
	Platform       entity.Platform
	OrganizationID string
	SentAt         *time.Time
}

// NotificationLogRepository persists delivery attempts.
type NotificationLogRepository interface {
	// ArticleIDsWithLogs returns the subset of articleIDs that already have a log row.
	// With ignoreFailed, rows in status failed do not count.
	ArticleIDsWithLogs(ctx context.Context, articleIDs []string, ignoreFailed bool) (map[string]bool, error)
	// CreatePending bulk-inserts pending rows and returns them with ids and timestamps set.
	CreatePending(ctx context.Context, logs []*entity.NotificationLog) ([]*entity.NotificationLog, error)
	// Create inserts log unless a success row exists for (ArticleID, ChannelID).
	// On Created, log.ID and timestamps are filled in.
	Create(ctx context.Context, log *entity.NotificationLog) (CreateOutcome, error)
	// SuccessExists reports whether a success row exists for the pair.
	SuccessExists(ctx context.Context, articleID, channelID string) (bool, error)
	// ClaimPending moves a pending row to processing, stamping u's channel context.
	// It reports false when the row is no longer pending.
	ClaimPending(ctx context.Context, u StatusUpdate) (bool, error)
	// UpdateStatus applies u. A missing row is reported as entity.ErrNotFound.
	UpdateStatus(ctx context.Context, u StatusUpdate) error
	// ListPendingForArticle returns the pending rows of an article keyed by channel id.
	ListPendingForArticle(ctx context.Context, articleID string) (map[string]*entity.NotificationLog, error)
	// ListPendingArticleIDs returns up to limit articles that still have pending rows,
	// the one with the oldest pending row first.
	ListPendingArticleIDs(ctx context.Context, limit int) ([]string, error)
}
