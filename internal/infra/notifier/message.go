package notifier

import (
	"fmt"
	"strings"
	"time"

	"osiri-dispatch/internal/domain/entity"
)

// SlackMessage is the chat.postMessage request body.
type SlackMessage struct {
	Channel     string       `json:"channel"`
	Text        string       `json:"text"`             // Fallback text (required)
	Blocks      []SlackBlock `json:"blocks,omitempty"` // Rich formatting blocks
	UnfurlLinks bool         `json:"unfurl_links"`
}

// SlackBlock represents a Slack Block Kit block.
type SlackBlock struct {
	Type     string            `json:"type"`               // "section", "context", "divider"
	Text     *SlackTextObject  `json:"text,omitempty"`     // Text content (for section)
	Elements []SlackTextObject `json:"elements,omitempty"` // Elements (for context)
}

// SlackTextObject represents a text object in Slack Block Kit.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

// DiscordMessage is the body of POST /channels/{id}/messages.
type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

type DiscordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

const (
	// Slack Block Kit limits
	maxSectionTextLength = 3000
	maxContextTextLength = 2000
	maxFallbackLength    = 150

	// Discord embed limits
	maxTitleLength       = 256
	maxDescriptionLength = 4096

	truncationSuffix = "..."

	discordBlueColor  = 5793266
	discordAmberColor = 16763904
)

// BuildSlackArticleMessage renders a translated article as Block Kit.
// Channel is left empty for the caller to fill in.
func BuildSlackArticleMessage(tr *entity.Translation, articleURL string) SlackMessage {
	fallback := truncate(tr.Title, maxFallbackLength, truncationSuffix)

	sectionText := fmt.Sprintf("*<%s|%s>*", articleURL, escapeMrkdwn(tr.Title))
	if summary := strings.TrimSpace(tr.Summary); summary != "" {
		sectionText += "\n\n" + escapeMrkdwn(summary)
	}
	sectionText = truncate(sectionText, maxSectionTextLength, truncationSuffix)

	contextText := truncate(
		fmt.Sprintf("%s • %s", strings.ToUpper(tr.TargetLanguage), tr.UpdatedAt.UTC().Format(time.RFC3339)),
		maxContextTextLength, truncationSuffix)

	return SlackMessage{
		Text: fallback,
		Blocks: []SlackBlock{
			{Type: "section", Text: &SlackTextObject{Type: "mrkdwn", Text: sectionText}},
			{Type: "context", Elements: []SlackTextObject{{Type: "mrkdwn", Text: contextText}}},
		},
	}
}

// BuildDiscordArticleMessage renders a translated article as a single embed.
func BuildDiscordArticleMessage(tr *entity.Translation, articleURL string) DiscordMessage {
	embed := DiscordEmbed{
		Title:       truncate(tr.Title, maxTitleLength, truncationSuffix),
		Description: truncate(tr.Summary, maxDescriptionLength, truncationSuffix),
		URL:         articleURL,
		Color:       discordBlueColor,
		Footer:      &DiscordEmbedFooter{Text: strings.ToUpper(tr.TargetLanguage)},
	}
	if !tr.UpdatedAt.IsZero() {
		embed.Timestamp = tr.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return DiscordMessage{Embeds: []DiscordEmbed{embed}}
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeMrkdwn escapes the three control characters Slack requires.
func escapeMrkdwn(s string) string {
	return mrkdwnEscaper.Replace(s)
}
