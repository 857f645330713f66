// Package entity defines the domain objects of the notification dispatch engine:
// articles and their translations, notification channels, workspace connections,
// notification logs and organization quota state.
package entity

import "time"

// Article is a feed entry. It is immutable once stored.
type Article struct {
	ID          string
	FeedID      string
	Title       string
	URL         string
	PublishedAt time.Time
	CreatedAt   time.Time
}

// TranslationStatus is the processing state of a Translation.
type TranslationStatus string

const (
	TranslationPending    TranslationStatus = "pending"
	TranslationProcessing TranslationStatus = "processing"
	TranslationCompleted  TranslationStatus = "completed"
	TranslationFailed     TranslationStatus = "failed"
)

// Translation is an article rendered in one target language.
// There is at most one per (ArticleID, TargetLanguage).
type Translation struct {
	ID             string
	ArticleID      string
	TargetLanguage string
	Title          string
	Summary        string
	Status         TranslationStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsDeliverable reports whether the translation may be sent to a channel.
func (t *Translation) IsDeliverable() bool {
	return t != nil && t.Status == TranslationCompleted
}
