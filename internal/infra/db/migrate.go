package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by MigrateUp. Every statement is idempotent.
var schema = []struct {
	name string
	sql  string
}{
	{"extension_pgcrypto", `CREATE EXTENSION IF NOT EXISTS pgcrypto`},
	{"subscription_plans", `
CREATE TABLE IF NOT EXISTS subscription_plans (
    id                         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name                       TEXT NOT NULL UNIQUE,
    base_notifications_per_day INTEGER CHECK (base_notifications_per_day IS NULL OR base_notifications_per_day >= 0)
)`},
	{"organizations", `
CREATE TABLE IF NOT EXISTS organizations (
    id                            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name                          TEXT NOT NULL,
    plan_id                       UUID REFERENCES subscription_plans(id),
    notifications_used_this_month INTEGER NOT NULL DEFAULT 0 CHECK (notifications_used_this_month >= 0),
    notifications_reset_at        TIMESTAMPTZ,
    last_limit_notification_at    TIMESTAMPTZ,
    created_at                    TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"organization_subscription_status", `
CREATE OR REPLACE VIEW organization_subscription_status AS
SELECT o.id   AS organization_id,
       COALESCE(p.name, '') AS plan_name,
       p.base_notifications_per_day,
       o.notifications_used_this_month,
       o.notifications_reset_at,
       o.last_limit_notification_at
FROM organizations o
LEFT JOIN subscription_plans p ON p.id = o.plan_id`},
	{"feeds", `
CREATE TABLE IF NOT EXISTS feeds (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    url        TEXT NOT NULL UNIQUE,
    title      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"articles", `
CREATE TABLE IF NOT EXISTS articles (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    feed_id      UUID NOT NULL REFERENCES feeds(id),
    title        TEXT NOT NULL,
    url          TEXT NOT NULL,
    published_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"translations", `
CREATE TABLE IF NOT EXISTS translations (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    article_id      UUID NOT NULL REFERENCES articles(id),
    target_language TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    summary         TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'pending'
                    CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (article_id, target_language)
)`},
	{"workspace_connections", `
CREATE TABLE IF NOT EXISTS workspace_connections (
    id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id  UUID NOT NULL REFERENCES organizations(id),
    platform         TEXT NOT NULL,
    workspace_id     TEXT NOT NULL,
    workspace_name   TEXT NOT NULL DEFAULT '',
    access_token     TEXT NOT NULL DEFAULT '',
    refresh_token    TEXT NOT NULL DEFAULT '',
    token_expires_at TIMESTAMPTZ,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"notification_channels", `
CREATE TABLE IF NOT EXISTS notification_channels (
    id                      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id         UUID NOT NULL REFERENCES organizations(id),
    platform                TEXT NOT NULL,
    name                    TEXT NOT NULL DEFAULT '',
    channel_identifier      TEXT NOT NULL,
    workspace_connection_id UUID REFERENCES workspace_connections(id),
    notification_language   TEXT NOT NULL DEFAULT 'en',
    is_active               BOOLEAN NOT NULL DEFAULT TRUE,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"channel_feeds", `
CREATE TABLE IF NOT EXISTS channel_feeds (
    channel_id UUID NOT NULL REFERENCES notification_channels(id) ON DELETE CASCADE,
    feed_id    UUID NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    PRIMARY KEY (channel_id, feed_id)
)`},
	{"notification_logs", `
CREATE TABLE IF NOT EXISTS notification_logs (
    id              UUID PRIMARY KEY,
    article_id      UUID NOT NULL REFERENCES articles(id),
    channel_id      UUID NOT NULL REFERENCES notification_channels(id),
    platform        TEXT NOT NULL,
    organization_id UUID NOT NULL,
    status          TEXT NOT NULL
                    CHECK (status IN ('pending', 'processing', 'success', 'failed', 'skipped')),
    recipient       TEXT NOT NULL DEFAULT '',
    error_message   TEXT,
    sent_at         TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`},
	{"idx_translations_status_updated_at", `CREATE INDEX IF NOT EXISTS idx_translations_status_updated_at ON translations(status, updated_at DESC)`},
	{"idx_articles_feed_id", `CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id)`},
	{"idx_channel_feeds_feed_id", `CREATE INDEX IF NOT EXISTS idx_channel_feeds_feed_id ON channel_feeds(feed_id)`},
	{"idx_notification_channels_active", `CREATE INDEX IF NOT EXISTS idx_notification_channels_active ON notification_channels(is_active) WHERE is_active = TRUE`},
	{"idx_notification_logs_article_channel", `CREATE INDEX IF NOT EXISTS idx_notification_logs_article_channel ON notification_logs(article_id, channel_id, status)`},
}

// MigrateUp creates the dispatch schema.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	for _, step := range schema {
		if _, err := db.ExecContext(ctx, step.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", step.name, err)
		}
	}
	return nil
}

// MigrateDown drops everything MigrateUp created, children first.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`DROP TABLE IF EXISTS notification_logs`,
		`DROP TABLE IF EXISTS channel_feeds`,
		`DROP TABLE IF EXISTS notification_channels`,
		`DROP TABLE IF EXISTS workspace_connections`,
		`DROP TABLE IF EXISTS translations`,
		`DROP TABLE IF EXISTS articles`,
		`DROP TABLE IF EXISTS feeds`,
		`DROP VIEW IF EXISTS organization_subscription_status`,
		`DROP TABLE IF EXISTS organizations`,
		`DROP TABLE IF EXISTS subscription_plans`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}
	return nil
}
