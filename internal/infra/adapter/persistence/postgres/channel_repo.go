package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/repository"
)

type ChannelRepo struct{ db DBTX }

func NewChannelRepo(db DBTX) repository.ChannelRepository {
	return &ChannelRepo{db: db}
}

const channelColumns = `
c.id, c.organization_id, c.platform, c.name, c.channel_identifier,
c.workspace_connection_id, c.notification_language, c.is_active,
c.created_at, c.updated_at`

func scanChannel(s scanner) (*entity.NotificationChannel, error) {
	var (
		ch         entity.NotificationChannel
		platform   string
		connection sql.NullString
	)
	if err := s.Scan(
		&ch.ID, &ch.OrganizationID, &platform, &ch.Name, &ch.ChannelIdentifier,
		&connection, &ch.NotificationLanguage, &ch.IsActive,
		&ch.CreatedAt, &ch.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ch.Platform = entity.Platform(platform)
	ch.WorkspaceConnectionID = nullStringPtr(connection)
	return &ch, nil
}

func (repo *ChannelRepo) queryChannels(ctx context.Context, op, query string, args ...any) ([]*entity.NotificationChannel, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	channels := make([]*entity.NotificationChannel, 0, 16)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return channels, nil
}

func (repo *ChannelRepo) ListActive(ctx context.Context) ([]*entity.NotificationChannel, error) {
	query := `
SELECT` + channelColumns + `
FROM notification_channels c
WHERE c.is_active = TRUE
ORDER BY c.created_at ASC, c.id ASC`
	return repo.queryChannels(ctx, "ListActive", query)
}

func (repo *ChannelRepo) Get(ctx context.Context, id string) (*entity.NotificationChannel, error) {
	query := `
SELECT` + channelColumns + `
FROM notification_channels c
WHERE c.id = $1
LIMIT 1`
	ch, err := scanChannel(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return ch, nil
}

func (repo *ChannelRepo) ListActiveForFeed(ctx context.Context, feedID string) ([]*entity.NotificationChannel, error) {
	query := `
SELECT` + channelColumns + `
FROM notification_channels c
JOIN channel_feeds cf ON cf.channel_id = c.id
WHERE cf.feed_id = $1
  AND c.is_active = TRUE
ORDER BY c.created_at ASC, c.id ASC`
	return repo.queryChannels(ctx, "ListActiveForFeed", query, feedID)
}

func (repo *ChannelRepo) ListActiveForArticle(ctx context.Context, articleID string) ([]*entity.NotificationChannel, error) {
	query := `
SELECT` + channelColumns + `
FROM notification_channels c
JOIN channel_feeds cf ON cf.channel_id = c.id
JOIN articles a ON a.feed_id = cf.feed_id
WHERE a.id = $1
  AND c.is_active = TRUE
ORDER BY c.created_at ASC, c.id ASC`
	return repo.queryChannels(ctx, "ListActiveForArticle", query, articleID)
}
