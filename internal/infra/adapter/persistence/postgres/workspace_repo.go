package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/repository"
)

type WorkspaceConnectionRepo struct{ db DBTX }

func NewWorkspaceConnectionRepo(db DBTX) repository.WorkspaceConnectionRepository {
	return &WorkspaceConnectionRepo{db: db}
}

func (repo *WorkspaceConnectionRepo) Get(ctx context.Context, id string) (*entity.WorkspaceConnection, error) {
	const query = `
SELECT id, organization_id, platform, workspace_id, workspace_name,
       access_token, refresh_token, token_expires_at, updated_at
FROM workspace_connections
WHERE id = $1
LIMIT 1`
	var (
		conn      entity.WorkspaceConnection
		platform  string
		expiresAt sql.NullTime
	)
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&conn.ID, &conn.OrganizationID, &platform, &conn.WorkspaceID, &conn.WorkspaceName,
		&conn.AccessToken, &conn.RefreshToken, &expiresAt, &conn.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	conn.Platform = entity.Platform(platform)
	conn.TokenExpiresAt = nullTimePtr(expiresAt)
	return &conn, nil
}

func (repo *WorkspaceConnectionRepo) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	const query = `
UPDATE workspace_connections
SET access_token     = $2,
    refresh_token    = $3,
    token_expires_at = $4,
    updated_at       = now()
WHERE id = $1`
	var expires any
	if expiresAt != nil {
		expires = *expiresAt
	}
	res, err := repo.db.ExecContext(ctx, query, id, accessToken, refreshToken, expires)
	if err != nil {
		return fmt.Errorf("UpdateTokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateTokens: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateTokens: connection %s: %w", id, entity.ErrNotFound)
	}
	return nil
}
