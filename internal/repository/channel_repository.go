package repository

import (
	"context"

	"osiri-dispatch/internal/domain/entity"
)

// ChannelRepository reads notification channels and their feed subscriptions.
type ChannelRepository interface {
	// ListActive returns every active channel.
	ListActive(ctx context.Context) ([]*entity.NotificationChannel, error)
	// Get returns the channel or (nil, nil) when it does not exist.
	Get(ctx context.Context, id string) (*entity.NotificationChannel, error)
	// ListActiveForFeed returns active channels subscribed to feedID.
	ListActiveForFeed(ctx context.Context, feedID string) ([]*entity.NotificationChannel, error)
	// ListActiveForArticle resolves the article's feed and returns its active subscribers.
	// An unknown article yields an empty slice.
	ListActiveForArticle(ctx context.Context, articleID string) ([]*entity.NotificationChannel, error)
}
