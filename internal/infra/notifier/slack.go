package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"osiri-dispatch/internal/resilience/circuitbreaker"
)

// DefaultSlackBaseURL is the Slack Web API root.
const DefaultSlackBaseURL = "https://slack.com/api"

// SlackConfig configures the Slack Web API client.
type SlackConfig struct {
	// BaseURL is the Web API root; overridden in tests.
	BaseURL string

	// Timeout is the HTTP request timeout for Slack API calls.
	Timeout time.Duration

	// RequestsPerSecond is the client-wide send rate (chat.postMessage
	// allows roughly one message per second per channel).
	RequestsPerSecond float64
}

// DefaultSlackConfig returns production defaults.
func DefaultSlackConfig() SlackConfig {
	return SlackConfig{
		BaseURL:           DefaultSlackBaseURL,
		Timeout:           10 * time.Second,
		RequestsPerSecond: 1.0,
	}
}

// SlackClient posts messages with a workspace bot token.
type SlackClient struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
}

// NewSlackClient creates a client with a 1-token bucket at the configured
// rate and the "slack-api" circuit breaker.
func NewSlackClient(config SlackConfig) *SlackClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultSlackBaseURL
	}
	return &SlackClient{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(config.RequestsPerSecond, 1),
		breaker:     circuitbreaker.New(circuitbreaker.SlackAPIConfig()),
	}
}

// SlackPostResult is the useful part of a successful chat.postMessage reply.
type SlackPostResult struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

type slackAPIResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	SlackPostResult
}

// PostMessage calls chat.postMessage. A reply with "ok": false is returned
// as *ProviderError.
func (s *SlackClient) PostMessage(ctx context.Context, token string, msg SlackMessage) (*SlackPostResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &ProviderError{Provider: "slack", Code: "not_authed"}
	}
	if err := s.rateLimiter.Allow(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal slack message: %w", err)
	}

	var (
		result   *SlackPostResult
		permErr  error
		endpoint = strings.TrimRight(s.config.BaseURL, "/") + "/chat.postMessage"
	)
	// Only transport and 5xx failures count against the breaker.
	err = s.breaker.Do(func() error {
		res, err := s.post(ctx, endpoint, token, body)
		if err != nil && !IsRetryable(err) {
			permErr = err
			return nil
		}
		if _, limited := AsRateLimit(err); limited {
			permErr = err
			return nil
		}
		result = res
		return err
	})
	if permErr != nil {
		return nil, permErr
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SlackClient) post(ctx context.Context, endpoint, token string, body []byte) (*SlackPostResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute http request: %s", sanitize(err.Error()))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus("Slack", resp, respBody)
	}

	var parsed slackAPIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode slack response: %w", err)
	}
	if !parsed.OK {
		if parsed.Error == "ratelimited" {
			return nil, &RateLimitError{Message: "Slack rate limit exceeded", RetryAfter: extractRetryAfter(resp, respBody)}
		}
		return nil, &ProviderError{Provider: "slack", Code: parsed.Error}
	}
	return &parsed.SlackPostResult, nil
}

// CircuitOpen reports whether the slack-api breaker is rejecting calls.
func (s *SlackClient) CircuitOpen() bool {
	return s.breaker.IsOpen()
}
