// Package notifier contains the chat-provider clients used by the dispatch
// engine: Slack Web API, Discord bot API, Slack OAuth token refresh, and the
// pure builders that turn translations into provider payloads.
package notifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"
)

// Error types shared by the Slack and Discord clients.

// RateLimitError represents a 429 response from a provider.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError represents a 4xx response from a provider.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError represents a 5xx response from a provider.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// ProviderError is a well-formed provider response that reports failure,
// e.g. Slack's {"ok": false, "error": "channel_not_found"}.
type ProviderError struct {
	Provider string
	Code     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s api error: %s", e.Provider, e.Code)
}

// AsRateLimit reports whether err carries a provider 429.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr, true
	}
	return nil, false
}

// IsRetryable reports whether another attempt could succeed.
// Client errors and provider-reported failures are permanent; 429s, 5xx and
// network errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return false
	}
	return true
}

// classifyStatus maps a non-2xx response to one of the error types above.
func classifyStatus(provider string, resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    provider + " rate limit exceeded",
			RetryAfter: extractRetryAfter(resp, body),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API client error: %s", provider, sanitize(string(body))),
		}
	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API server error: %s", provider, sanitize(string(body))),
		}
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, sanitize(string(body)))
}

type retryAfterBody struct {
	RetryAfter float64 `json:"retry_after"`
}

// extractRetryAfter reads retry_after (seconds) from a JSON body, then the
// Retry-After header. Defaults to 5s.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var parsed retryAfterBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.RetryAfter > 0 {
		return time.Duration(parsed.RetryAfter * float64(time.Second))
	}

	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return 5 * time.Second
}

var tokenPattern = regexp.MustCompile(`(xox[abposer]-[A-Za-z0-9.-]+|xoxe\.[A-Za-z0-9.-]+|Bot [A-Za-z0-9._-]{20,}|Bearer [A-Za-z0-9._-]+)`)

// sanitize masks anything that looks like a provider token.
func sanitize(s string) string {
	return tokenPattern.ReplaceAllString(s, "[REDACTED]")
}

// truncate cuts text to at most maxRunes runes, appending suffix when cut.
func truncate(text string, maxRunes int, suffix string) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	keep := maxRunes - utf8.RuneCountInString(suffix)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(text)
	return string(runes[:keep]) + suffix
}
