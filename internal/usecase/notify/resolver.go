package notify

import (
	"context"
	"log/slog"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/observability/logging"
	"osiri-dispatch/internal/repository"
)

// PendingResult summarizes one resolver pass.
type PendingResult struct {
	// Processed is the number of distinct articles considered.
	Processed int `json:"processed"`
	// Inserted is the number of pending rows created.
	Inserted int `json:"inserted"`
	// Skipped is the number of articles that already had log rows.
	Skipped int                       `json:"skipped"`
	Logs    []*entity.NotificationLog `json:"-"`
}

// Resolver turns freshly completed translations into pending log rows.
type Resolver struct {
	content  repository.ContentRepository
	channels repository.ChannelRepository
	logs     repository.NotificationLogRepository
	cfg      ResolverConfig
}

func NewResolver(content repository.ContentRepository, channels repository.ChannelRepository, logs repository.NotificationLogRepository, cfg ResolverConfig) *Resolver {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultResolverConfig().Limit
	}
	return &Resolver{content: content, channels: channels, logs: logs, cfg: cfg}
}

// CreatePendingNotifications creates one pending row per (article, active
// channel) for recent articles that have no log rows yet.
func (r *Resolver) CreatePendingNotifications(ctx context.Context) (PendingResult, error) {
	logger := logging.FromContext(ctx)

	translations, err := r.content.ListRecentCompletedTranslations(ctx, r.cfg.Limit)
	if err != nil {
		return PendingResult{}, persistenceErr("list completed translations", err)
	}

	articleIDs := uniqueArticleIDs(translations)
	res := PendingResult{Processed: len(articleIDs)}
	if len(articleIDs) == 0 {
		return res, nil
	}

	seen, err := r.logs.ArticleIDsWithLogs(ctx, articleIDs, r.cfg.RetryFailed)
	if err != nil {
		return res, persistenceErr("list articles with logs", err)
	}

	var pending []*entity.NotificationLog
	for _, articleID := range articleIDs {
		if seen[articleID] {
			res.Skipped++
			continue
		}
		channels, err := r.channels.ListActiveForArticle(ctx, articleID)
		if err != nil {
			return res, persistenceErr("list channels for article", err)
		}
		for _, ch := range channels {
			pending = append(pending, entity.NewPendingLog(articleID, ch))
		}
	}

	if len(pending) == 0 {
		return res, nil
	}
	created, err := r.logs.CreatePending(ctx, pending)
	if err != nil {
		return res, persistenceErr("create pending logs", err)
	}
	res.Inserted = len(created)
	res.Logs = created
	RecordPendingCreated(len(created))

	logger.Info("pending notifications created",
		slog.Int("articles", res.Processed),
		slog.Int("skipped", res.Skipped),
		slog.Int("inserted", res.Inserted))
	return res, nil
}

func uniqueArticleIDs(translations []*entity.Translation) []string {
	seen := make(map[string]struct{}, len(translations))
	ids := make([]string, 0, len(translations))
	for _, tr := range translations {
		if _, ok := seen[tr.ArticleID]; ok {
			continue
		}
		seen[tr.ArticleID] = struct{}{}
		ids = append(ids, tr.ArticleID)
	}
	return ids
}
