package notify

import (
	"context"
	"fmt"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/infra/notifier"
	"osiri-dispatch/internal/repository"
)

// SlackPoster is the part of notifier.SlackClient the Slack sender needs.
type SlackPoster interface {
	PostMessage(ctx context.Context, token string, msg notifier.SlackMessage) (*notifier.SlackPostResult, error)
}

// DiscordPoster is the part of notifier.DiscordClient the Discord sender needs.
type DiscordPoster interface {
	CreateMessage(ctx context.Context, channelID string, msg notifier.DiscordMessage) error
}

// AccessTokenSource yields a bot token for a workspace connection.
type AccessTokenSource interface {
	AccessToken(ctx context.Context, connectionID string) (string, error)
}

// loadContent fetches the completed translation in lang and its article.
// Either one missing is a failed attempt.
func loadContent(ctx context.Context, content repository.ContentRepository, articleID, lang string) (*entity.Translation, *entity.Article, error) {
	tr, err := content.GetCompletedTranslation(ctx, articleID, lang)
	if err != nil {
		return nil, nil, persistenceErr("get translation", err)
	}
	if tr == nil {
		return nil, nil, fmt.Errorf("article %s (%s): %w", articleID, lang, ErrTranslationNotFound)
	}
	article, err := content.GetArticle(ctx, articleID)
	if err != nil {
		return nil, nil, persistenceErr("get article", err)
	}
	if article == nil {
		return nil, nil, fmt.Errorf("%s: %w", articleID, ErrArticleNotFound)
	}
	return tr, article, nil
}

// SlackSender posts to Slack with the workspace connection's bot token.
type SlackSender struct {
	content repository.ContentRepository
	tokens  AccessTokenSource
	client  SlackPoster
}

func NewSlackSender(content repository.ContentRepository, tokens AccessTokenSource, client SlackPoster) *SlackSender {
	return &SlackSender{content: content, tokens: tokens, client: client}
}

func (s *SlackSender) SendArticle(ctx context.Context, log *entity.NotificationLog, ch *entity.NotificationChannel) error {
	tr, article, err := loadContent(ctx, s.content, log.ArticleID, ch.Language())
	if err != nil {
		return err
	}
	msg := notifier.BuildSlackArticleMessage(tr, article.URL)
	return s.post(ctx, ch, msg)
}

func (s *SlackSender) SendLimitNotice(ctx context.Context, ch *entity.NotificationChannel, status *entity.OrganizationSubscriptionStatus) error {
	return s.post(ctx, ch, notifier.BuildSlackLimitMessage(status, ch.Language()))
}

func (s *SlackSender) post(ctx context.Context, ch *entity.NotificationChannel, msg notifier.SlackMessage) error {
	token, err := s.tokens.AccessToken(ctx, ch.ConnectionID())
	if err != nil {
		return err
	}
	msg.Channel = ch.ChannelIdentifier
	_, err = s.client.PostMessage(ctx, token, msg)
	return err
}

// DiscordSender posts to Discord channels with the application's bot token.
type DiscordSender struct {
	content repository.ContentRepository
	client  DiscordPoster
}

func NewDiscordSender(content repository.ContentRepository, client DiscordPoster) *DiscordSender {
	return &DiscordSender{content: content, client: client}
}

func (s *DiscordSender) SendArticle(ctx context.Context, log *entity.NotificationLog, ch *entity.NotificationChannel) error {
	tr, article, err := loadContent(ctx, s.content, log.ArticleID, ch.Language())
	if err != nil {
		return err
	}
	return s.client.CreateMessage(ctx, ch.ChannelIdentifier, notifier.BuildDiscordArticleMessage(tr, article.URL))
}

func (s *DiscordSender) SendLimitNotice(ctx context.Context, ch *entity.NotificationChannel, status *entity.OrganizationSubscriptionStatus) error {
	return s.client.CreateMessage(ctx, ch.ChannelIdentifier, notifier.BuildDiscordLimitMessage(status, ch.Language()))
}
