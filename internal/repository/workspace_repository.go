package repository

import (
	"context"
	"time"

	"osiri-dispatch/internal/domain/entity"
)

// WorkspaceConnectionRepository stores OAuth credentials of installed workspaces.
type WorkspaceConnectionRepository interface {
	// Get returns the connection or (nil, nil) when it does not exist.
	Get(ctx context.Context, id string) (*entity.WorkspaceConnection, error)
	// UpdateTokens persists a refreshed token set.
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error
}
