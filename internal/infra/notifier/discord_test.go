package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestDiscordClient(baseURL, token string) *DiscordClient {
	return NewDiscordClient(DiscordConfig{BaseURL: baseURL, BotToken: token, Timeout: 2 * time.Second})
}

func TestDiscordClient_CreateMessage(t *testing.T) {
	t.Run("TC-1: should post to channel route with bot token", func(t *testing.T) {
		// Arrange
		var gotAuth, gotPath string
		var gotMsg DiscordMessage
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &gotMsg)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"1"}`))
		}))
		defer server.Close()

		msg := DiscordMessage{Embeds: []DiscordEmbed{{Title: "t", Description: "d"}}}

		// Act
		err := newTestDiscordClient(server.URL, "bot-secret").CreateMessage(context.Background(), "99887766", msg)

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotAuth != "Bot bot-secret" {
			t.Errorf("expected Bot header, got %q", gotAuth)
		}
		if gotPath != "/channels/99887766/messages" {
			t.Errorf("unexpected path %q", gotPath)
		}
		if len(gotMsg.Embeds) != 1 || gotMsg.Embeds[0].Title != "t" {
			t.Errorf("unexpected payload %+v", gotMsg)
		}
	})

	t.Run("TC-2: 403 should return non-retryable ClientError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"Missing Access","code":50001}`))
		}))
		defer server.Close()

		err := newTestDiscordClient(server.URL, "tok").CreateMessage(context.Background(), "1", DiscordMessage{Content: "x"})

		var clientErr *ClientError
		if !errors.As(err, &clientErr) || clientErr.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403 ClientError, got %v", err)
		}
		if IsRetryable(err) {
			t.Error("client errors should not be retryable")
		}
	})

	t.Run("TC-3: 429 should carry retry_after from body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"You are being rate limited.","retry_after":1.5,"global":false}`))
		}))
		defer server.Close()

		err := newTestDiscordClient(server.URL, "tok").CreateMessage(context.Background(), "1", DiscordMessage{Content: "x"})

		rl, ok := AsRateLimit(err)
		if !ok {
			t.Fatalf("expected RateLimitError, got %v", err)
		}
		if rl.RetryAfter != 1500*time.Millisecond {
			t.Errorf("expected 1.5s, got %v", rl.RetryAfter)
		}
	})

	t.Run("TC-4: missing bot token", func(t *testing.T) {
		err := newTestDiscordClient("http://127.0.0.1:0", "").CreateMessage(context.Background(), "1", DiscordMessage{})
		if !errors.Is(err, ErrMissingBotToken) {
			t.Errorf("expected ErrMissingBotToken, got %v", err)
		}
	})
}

func TestNewDiscordClient(t *testing.T) {
	client := NewDiscordClient(DefaultDiscordConfig("tok"))
	if client.config.BaseURL != DefaultDiscordBaseURL {
		t.Errorf("expected default base URL, got %q", client.config.BaseURL)
	}
	if client.breaker.Name() != "discord-api" {
		t.Errorf("expected discord-api breaker, got %q", client.breaker.Name())
	}
}
