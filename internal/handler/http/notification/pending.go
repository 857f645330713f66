package notification

import (
	"net/http"

	"osiri-dispatch/internal/handler/http/respond"
	notifyUC "osiri-dispatch/internal/usecase/notify"
)

// PendingHandler runs the resolver only and reports
// {processed, inserted, skipped}.
type PendingHandler struct{ Svc notifyUC.Service }

func (h PendingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.CreatePendingNotifications(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}
