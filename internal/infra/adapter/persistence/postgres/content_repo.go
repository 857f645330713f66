package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/repository"
)

type ContentRepo struct{ db DBTX }

func NewContentRepo(db DBTX) repository.ContentRepository {
	return &ContentRepo{db: db}
}

const translationColumns = `
id, article_id, target_language, title, summary, status, created_at, updated_at`

func scanTranslation(s scanner) (*entity.Translation, error) {
	var tr entity.Translation
	var status string
	if err := s.Scan(&tr.ID, &tr.ArticleID, &tr.TargetLanguage, &tr.Title, &tr.Summary,
		&status, &tr.CreatedAt, &tr.UpdatedAt); err != nil {
		return nil, err
	}
	tr.Status = entity.TranslationStatus(status)
	return &tr, nil
}

func (repo *ContentRepo) ListRecentCompletedTranslations(ctx context.Context, limit int) ([]*entity.Translation, error) {
	query := `
SELECT` + translationColumns + `
FROM translations
WHERE status = 'completed'
ORDER BY updated_at DESC
LIMIT $1`
	rows, err := repo.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRecentCompletedTranslations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	translations := make([]*entity.Translation, 0, limit)
	for rows.Next() {
		tr, err := scanTranslation(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRecentCompletedTranslations: %w", err)
		}
		translations = append(translations, tr)
	}
	return translations, rows.Err()
}

func (repo *ContentRepo) GetCompletedTranslation(ctx context.Context, articleID, language string) (*entity.Translation, error) {
	query := `
SELECT` + translationColumns + `
FROM translations
WHERE article_id = $1
  AND target_language = $2
  AND status = 'completed'
LIMIT 1`
	tr, err := scanTranslation(repo.db.QueryRowContext(ctx, query, articleID, language))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetCompletedTranslation: %w", err)
	}
	return tr, nil
}

func (repo *ContentRepo) GetArticle(ctx context.Context, id string) (*entity.Article, error) {
	const query = `
SELECT id, feed_id, title, url, published_at, created_at
FROM articles
WHERE id = $1
LIMIT 1`
	var article entity.Article
	var publishedAt sql.NullTime
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&article.ID, &article.FeedID, &article.Title, &article.URL, &publishedAt, &article.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetArticle: %w", err)
	}
	article.PublishedAt = publishedAt.Time
	return &article, nil
}
