package notification

import (
	"errors"
	"strings"

	"osiri-dispatch/internal/domain/entity"
	notifyUC "osiri-dispatch/internal/usecase/notify"
)

// SendRequest is the body of POST /notifications/send.
type SendRequest struct {
	ArticleID string `json:"article_id"`
	ChannelID string `json:"channel_id"`
}

func (r *SendRequest) validate() error {
	r.ArticleID = strings.TrimSpace(r.ArticleID)
	r.ChannelID = strings.TrimSpace(r.ChannelID)
	var errs []error
	if r.ArticleID == "" {
		errs = append(errs, errors.New("article_id is required"))
	}
	if r.ChannelID == "" {
		errs = append(errs, errors.New("channel_id is required"))
	}
	return errors.Join(errs...)
}

// DispatchResponse acknowledges a background batch.
type DispatchResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the body of GET /notifications/stats.
type StatsResponse struct {
	Platforms map[entity.Platform]notifyUC.Stats `json:"platforms"`
}
