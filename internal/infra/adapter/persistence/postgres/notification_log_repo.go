package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/repository"
)

type NotificationLogRepo struct{ db DBTX }

func NewNotificationLogRepo(db DBTX) repository.NotificationLogRepository {
	return &NotificationLogRepo{db: db}
}

// newLogID is replaced in tests to get deterministic ids.
var newLogID = uuid.NewString

func (repo *NotificationLogRepo) ArticleIDsWithLogs(ctx context.Context, articleIDs []string, ignoreFailed bool) (map[string]bool, error) {
	found := make(map[string]bool, len(articleIDs))
	if len(articleIDs) == 0 {
		return found, nil
	}

	where := sq.And{sq.Eq{"article_id": articleIDs}}
	if ignoreFailed {
		where = append(where, sq.NotEq{"status": string(entity.LogFailed)})
	}
	query, args, err := psql.Select("DISTINCT article_id").
		From("notification_logs").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ArticleIDsWithLogs: build: %w", err)
	}

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ArticleIDsWithLogs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ArticleIDsWithLogs: %w", err)
		}
		found[id] = true
	}
	return found, rows.Err()
}

func (repo *NotificationLogRepo) CreatePending(ctx context.Context, logs []*entity.NotificationLog) ([]*entity.NotificationLog, error) {
	if len(logs) == 0 {
		return nil, nil
	}

	insert := psql.Insert("notification_logs").
		Columns("id", "article_id", "channel_id", "platform", "organization_id", "status", "recipient").
		Suffix("RETURNING id, created_at, updated_at")

	byID := make(map[string]*entity.NotificationLog, len(logs))
	for _, l := range logs {
		l.ID = newLogID()
		l.Status = entity.LogPending
		byID[l.ID] = l
		insert = insert.Values(l.ID, l.ArticleID, l.ChannelID, string(l.Platform), l.OrganizationID, string(l.Status), l.Recipient)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return nil, fmt.Errorf("CreatePending: build: %w", err)
	}

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("CreatePending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var created, updated sql.NullTime
		if err := rows.Scan(&id, &created, &updated); err != nil {
			return nil, fmt.Errorf("CreatePending: %w", err)
		}
		if l, ok := byID[id]; ok {
			l.CreatedAt = created.Time
			l.UpdatedAt = updated.Time
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CreatePending: %w", err)
	}
	return logs, nil
}

// Create inserts the row only when no success row exists for the pair.
// The existence check and the insert run as one statement.
func (repo *NotificationLogRepo) Create(ctx context.Context, l *entity.NotificationLog) (repository.CreateOutcome, error) {
	const query = `
INSERT INTO notification_logs (id, article_id, channel_id, platform, organization_id, status, recipient, error_message)
SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::uuid, $6::text, $7::text, NULLIF($8::text, '')
WHERE NOT EXISTS (
    SELECT 1 FROM notification_logs
    WHERE article_id = $2::uuid AND channel_id = $3::uuid AND status = 'success'
)
RETURNING created_at, updated_at`

	id := newLogID()
	status := l.Status
	if status == "" {
		status = entity.LogPending
	}
	errMsg := ""
	if l.ErrorMessage != nil {
		errMsg = *l.ErrorMessage
	}

	err := repo.db.QueryRowContext(ctx, query,
		id, l.ArticleID, l.ChannelID, string(l.Platform), l.OrganizationID, string(status), l.Recipient, errMsg,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return repository.AlreadySucceeded, nil
	}
	if err != nil {
		return repository.Created, fmt.Errorf("Create: %w", err)
	}
	l.ID = id
	l.Status = status
	return repository.Created, nil
}

func (repo *NotificationLogRepo) SuccessExists(ctx context.Context, articleID, channelID string) (bool, error) {
	const query = `
SELECT EXISTS (
    SELECT 1 FROM notification_logs
    WHERE article_id = $1 AND channel_id = $2 AND status = 'success'
)`
	var exists bool
	if err := repo.db.QueryRowContext(ctx, query, articleID, channelID).Scan(&exists); err != nil {
		return false, fmt.Errorf("SuccessExists: %w", err)
	}
	return exists, nil
}

// ClaimPending is the compare-and-set that gives one worker a row: only a
// pending row moves to processing.
func (repo *NotificationLogRepo) ClaimPending(ctx context.Context, u repository.StatusUpdate) (bool, error) {
	const query = `
UPDATE notification_logs
SET status          = 'processing',
    recipient       = $2,
    platform        = $3,
    organization_id = $4,
    updated_at      = now()
WHERE id = $1 AND status = 'pending'`

	res, err := repo.db.ExecContext(ctx, query, u.LogID, u.Recipient, string(u.Platform), u.OrganizationID)
	if err != nil {
		return false, fmt.Errorf("ClaimPending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ClaimPending: %w", err)
	}
	return n == 1, nil
}

func (repo *NotificationLogRepo) UpdateStatus(ctx context.Context, u repository.StatusUpdate) error {
	const query = `
UPDATE notification_logs
SET status          = $2,
    recipient       = $3,
    error_message   = NULLIF($4, ''),
    platform        = $5,
    organization_id = $6,
    sent_at         = COALESCE($7, sent_at),
    updated_at      = now()
WHERE id = $1`

	var sentAt any
	if u.SentAt != nil {
		sentAt = *u.SentAt
	}
	res, err := repo.db.ExecContext(ctx, query,
		u.LogID, string(u.Status), u.Recipient, u.ErrorMessage, string(u.Platform), u.OrganizationID, sentAt,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateStatus: log %s: %w", u.LogID, entity.ErrNotFound)
	}
	return nil
}

func (repo *NotificationLogRepo) ListPendingForArticle(ctx context.Context, articleID string) (map[string]*entity.NotificationLog, error) {
	const query = `
SELECT id, article_id, channel_id, platform, organization_id, status, recipient,
       error_message, sent_at, created_at, updated_at
FROM notification_logs
WHERE article_id = $1 AND status = 'pending'
ORDER BY created_at ASC`
	rows, err := repo.db.QueryContext(ctx, query, articleID)
	if err != nil {
		return nil, fmt.Errorf("ListPendingForArticle: %w", err)
	}
	defer func() { _ = rows.Close() }()

	pending := make(map[string]*entity.NotificationLog)
	for rows.Next() {
		var (
			l                entity.NotificationLog
			platform, status string
			errMsg           sql.NullString
			sentAt           sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.ArticleID, &l.ChannelID, &platform, &l.OrganizationID, &status,
			&l.Recipient, &errMsg, &sentAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListPendingForArticle: %w", err)
		}
		l.Platform = entity.Platform(platform)
		l.Status = entity.LogStatus(status)
		l.ErrorMessage = nullStringPtr(errMsg)
		l.SentAt = nullTimePtr(sentAt)
		// keep the oldest pending row per channel
		if _, dup := pending[l.ChannelID]; !dup {
			pending[l.ChannelID] = &l
		}
	}
	return pending, rows.Err()
}

func (repo *NotificationLogRepo) ListPendingArticleIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	query, args, err := psql.Select("article_id").
		From("notification_logs").
		Where(sq.Eq{"status": string(entity.LogPending)}).
		GroupBy("article_id").
		OrderBy("MIN(created_at) ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ListPendingArticleIDs: build: %w", err)
	}

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListPendingArticleIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListPendingArticleIDs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
