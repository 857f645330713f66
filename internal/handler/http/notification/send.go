package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"osiri-dispatch/internal/domain/entity"
	"osiri-dispatch/internal/handler/http/respond"
	notifyUC "osiri-dispatch/internal/usecase/notify"
)

// SendHandler delivers one article to one channel and waits for the outcome.
// A delivery that failed or hit the quota is still a 200; the body says why.
type SendHandler struct {
	Svc    notifyUC.Service
	Logger *slog.Logger
}

func (h SendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := req.validate(); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.Svc.SendToChannel(r.Context(), req.ArticleID, req.ChannelID)
	if errors.Is(err, notifyUC.ErrNoProcessor) || errors.Is(err, entity.ErrValidationFailed) {
		respond.Error(w, http.StatusUnprocessableEntity, err)
		return
	}
	if err != nil {
		respond.SafeError(w, statusFor(err), err)
		return
	}
	if !res.Success {
		h.Logger.WarnContext(r.Context(), "single notification not delivered",
			slog.String("article_id", req.ArticleID),
			slog.String("channel_id", req.ChannelID),
			slog.String("error", res.Error),
			slog.Bool("retryable", res.Retryable))
	}
	respond.JSON(w, http.StatusOK, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, notifyUC.ErrAlreadyDelivered),
		errors.Is(err, notifyUC.ErrDeliveryInProgress),
		errors.Is(err, notifyUC.ErrChannelInactive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
