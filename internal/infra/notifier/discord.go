package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"osiri-dispatch/internal/resilience/circuitbreaker"
)

const DefaultDiscordBaseURL = "https://discord.com/api/v10"

// ErrMissingBotToken is returned when the Discord client has no credentials.
var ErrMissingBotToken = errors.New("discord bot token is not configured")

type DiscordConfig struct {
	BaseURL  string
	BotToken string
	Timeout  time.Duration

	// Discord's global limit is 50 req/s; per-route buckets are far lower.
	RequestsPerSecond float64
	Burst             int
}

func DefaultDiscordConfig(botToken string) DiscordConfig {
	return DiscordConfig{
		BaseURL:           DefaultDiscordBaseURL,
		BotToken:          botToken,
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// DiscordClient posts channel messages as a bot.
type DiscordClient struct {
	config      DiscordConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
}

func NewDiscordClient(config DiscordConfig) *DiscordClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultDiscordBaseURL
	}
	return &DiscordClient{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(config.RequestsPerSecond, config.Burst),
		breaker:     circuitbreaker.New(circuitbreaker.DiscordAPIConfig()),
	}
}

// CreateMessage posts msg to channelID. Any non-2xx response is an error.
func (d *DiscordClient) CreateMessage(ctx context.Context, channelID string, msg DiscordMessage) error {
	if d.config.BotToken == "" {
		return ErrMissingBotToken
	}
	if err := d.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal discord message: %w", err)
	}
	endpoint := fmt.Sprintf("%s/channels/%s/messages", strings.TrimRight(d.config.BaseURL, "/"), url.PathEscape(channelID))

	var permErr error
	err = d.breaker.Do(func() error {
		err := d.post(ctx, endpoint, body)
		if _, limited := AsRateLimit(err); limited || (err != nil && !IsRetryable(err)) {
			permErr = err
			return nil
		}
		return err
	})
	if permErr != nil {
		return permErr
	}
	return err
}

func (d *DiscordClient) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+d.config.BotToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %s", sanitize(err.Error()))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return classifyStatus("Discord", resp, respBody)
}

// CircuitOpen reports whether the discord-api breaker is rejecting calls.
func (d *DiscordClient) CircuitOpen() bool {
	return d.breaker.IsOpen()
}
