package repository

import (
	"context"

	"osiri-dispatch/internal/domain/entity"
)

// ContentRepository reads articles and translations produced upstream.
type ContentRepository interface {
	// ListRecentCompletedTranslations returns up to limit completed translations,
	// most recently updated first.
	ListRecentCompletedTranslations(ctx context.Context, limit int) ([]*entity.Translation, error)
	// GetCompletedTranslation returns the completed translation of articleID in
	// language, or (nil, nil) when none exists.
	GetCompletedTranslation(ctx context.Context, articleID, language string) (*entity.Translation, error)
	// GetArticle returns the article or (nil, nil) when it does not exist.
	GetArticle(ctx context.Context, id string) (*entity.Article, error)
}
