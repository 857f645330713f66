package notification

import (
	"errors"
	"log/slog"
	"net/http"

	"osiri-dispatch/internal/handler/http/auth"
	"osiri-dispatch/internal/handler/http/respond"
	notifyUC "osiri-dispatch/internal/usecase/notify"
)

// DispatchHandler starts a batch run in the background.
//
//	202 {"status":"accepted"}
//	409 a batch is already running
//	503 the service is shutting down
type DispatchHandler struct {
	Svc    notifyUC.Service
	Logger *slog.Logger
}

func (h DispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.Svc.TriggerBatch(r.Context())
	switch {
	case err == nil:
		h.Logger.InfoContext(r.Context(), "notification batch triggered",
			slog.String("subject", auth.SubjectFromContext(r.Context())))
		respond.JSON(w, http.StatusAccepted, DispatchResponse{Status: "accepted"})
	case errors.Is(err, notifyUC.ErrBatchInProgress):
		respond.SafeError(w, http.StatusConflict, err)
	case errors.Is(err, notifyUC.ErrServiceShutdown):
		respond.SafeError(w, http.StatusServiceUnavailable, err)
	default:
		respond.SafeError(w, http.StatusInternalServerError, err)
	}
}
