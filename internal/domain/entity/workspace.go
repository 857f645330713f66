package entity

import "time"

// WorkspaceConnection holds the OAuth credentials of an installed workspace.
type WorkspaceConnection struct {
	ID             string
	OrganizationID string
	Platform       Platform
	WorkspaceID    string
	WorkspaceName  string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	UpdatedAt      time.Time
}

// CanRefresh reports whether a refresh token is available.
func (w *WorkspaceConnection) CanRefresh() bool {
	return w.RefreshToken != ""
}

// NeedsRefresh reports whether the access token should be refreshed before use.
// Tokens without a refresh token are used as-is. A refreshable token with an
// unknown expiry is treated as stale.
func (w *WorkspaceConnection) NeedsRefresh(now time.Time, skew time.Duration) bool {
	if !w.CanRefresh() {
		return false
	}
	if w.AccessToken == "" || w.TokenExpiresAt == nil {
		return true
	}
	return !now.Add(skew).Before(*w.TokenExpiresAt)
}
