package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrMissingRefreshToken is returned when a connection cannot be refreshed.
var ErrMissingRefreshToken = errors.New("slack refresh token is empty")

type SlackOAuthConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Timeout      time.Duration
}

// RefreshedToken is what Slack hands back from a refresh grant.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// SlackTokenRefresher exchanges a rotating refresh token at oauth.v2.access.
type SlackTokenRefresher struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

func NewSlackTokenRefresher(config SlackOAuthConfig) *SlackTokenRefresher {
	base := config.BaseURL
	if base == "" {
		base = DefaultSlackBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackTokenRefresher{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimRight(base, "/") + "/oauth.v2.access",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Refresh performs the refresh_token grant. Slack rotates the refresh
// token on every exchange; when the reply omits one the old token is kept.
func (r *SlackTokenRefresher) Refresh(ctx context.Context, refreshToken string) (*RefreshedToken, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrMissingRefreshToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	tok, err := r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return nil, &ProviderError{Provider: "slack", Code: retrieveErr.ErrorCode}
		}
		return nil, fmt.Errorf("slack token refresh: %s", sanitize(err.Error()))
	}

	out := &RefreshedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		out.ExpiresAt = &expiry
	}
	return out, nil
}
