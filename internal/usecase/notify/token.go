package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/infra/notifier"
	"osiri-dispatch/internal/repository"
	"osiri-dispatch/internal/resilience/retry"
)

// RefreshPolicy decides when a Slack access token is exchanged.
type RefreshPolicy int

const (
	// RefreshPolicyOnExpiry refreshes tokens that expire within the skew,
	// tokens with unknown expiry, and empty access tokens.
	RefreshPolicyOnExpiry RefreshPolicy = iota

	// RefreshPolicyAlways refreshes before every send.
	RefreshPolicyAlways
)

// DefaultRefreshSkew is how early a token is treated as expired.
const DefaultRefreshSkew = 5 * time.Minute

// TokenRefresher performs the OAuth refresh grant.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*notifier.RefreshedToken, error)
}

// SlackTokenManager hands out usable bot tokens for workspace connections.
type SlackTokenManager struct {
	conns     repository.WorkspaceConnectionRepository
	refresher TokenRefresher
	policy    RefreshPolicy
	skew      time.Duration
	now       func() time.Time
	group     singleflight.Group
	retry     retry.Config
}

func NewSlackTokenManager(conns repository.WorkspaceConnectionRepository, refresher TokenRefresher, policy RefreshPolicy) *SlackTokenManager {
	return &SlackTokenManager{
		conns:     conns,
		refresher: refresher,
		policy:    policy,
		skew:      DefaultRefreshSkew,
		now:       time.Now,
		retry:     refreshRetryConfig(),
	}
}

// refreshRetryConfig retries transport failures and 5xx answers of the
// refresh grant. Provider errors such as invalid_refresh_token are final.
func refreshRetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.Retryable = func(err error) bool {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return notifier.IsRetryable(err)
	}
	return cfg
}

func (m *SlackTokenManager) shouldRefresh(conn *entity.WorkspaceConnection) bool {
	if m.policy == RefreshPolicyAlways {
		return conn.CanRefresh()
	}
	return conn.NeedsRefresh(m.now(), m.skew)
}

// AccessToken returns a bot token for connectionID, refreshing and
// persisting it first when the policy requires. Concurrent callers for the
// same connection share one refresh.
func (m *SlackTokenManager) AccessToken(ctx context.Context, connectionID string) (string, error) {
	if connectionID == "" {
		return "", ErrConnectionNotFound
	}
	conn, err := m.conns.Get(ctx, connectionID)
	if err != nil {
		return "", persistenceErr("get workspace connection", err)
	}
	if conn == nil {
		return "", fmt.Errorf("%s: %w", connectionID, ErrConnectionNotFound)
	}

	if !m.shouldRefresh(conn) {
		if conn.AccessToken == "" {
			return "", fmt.Errorf("workspace connection %s has no access token", connectionID)
		}
		return conn.AccessToken, nil
	}

	v, err, shared := m.group.Do(connectionID, func() (interface{}, error) {
		return m.refresh(ctx, conn)
	})
	if shared {
		slog.Debug("slack token refresh shared",
			slog.String("workspace_connection_id", connectionID))
	}
	if err != nil {
		// A failed rotation does not invalidate a token that is still live.
		if m.stillValid(conn) {
			slog.Warn("slack token refresh failed, using current token",
				slog.String("workspace_connection_id", connectionID),
				slog.Any("error", err))
			return conn.AccessToken, nil
		}
		return "", err
	}
	return v.(string), nil
}

func (m *SlackTokenManager) stillValid(conn *entity.WorkspaceConnection) bool {
	if conn.AccessToken == "" {
		return false
	}
	return conn.TokenExpiresAt == nil || m.now().Before(*conn.TokenExpiresAt)
}

func (m *SlackTokenManager) refresh(ctx context.Context, conn *entity.WorkspaceConnection) (string, error) {
	var tok *notifier.RefreshedToken
	err := retry.WithBackoff(ctx, m.retry, func() error {
		var err error
		tok, err = m.refresher.Refresh(ctx, conn.RefreshToken)
		return err
	})
	if err != nil {
		RecordTokenRefresh(false)
		return "", fmt.Errorf("refresh slack token: %w", err)
	}
	RecordTokenRefresh(true)

	if err := m.conns.UpdateTokens(ctx, conn.ID, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt); err != nil {
		// Slack has already invalidated the old refresh token at this point.
		if errors.Is(err, entity.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", conn.ID, ErrConnectionNotFound)
		}
		return "", persistenceErr("update workspace tokens", err)
	}

	slog.Info("slack token refreshed",
		slog.String("workspace_connection_id", conn.ID),
		slog.String("organization_id", conn.OrganizationID))
	return tok.AccessToken, nil
}
