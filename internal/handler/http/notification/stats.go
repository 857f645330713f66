package notification

import (
	"net/http"

	"osiri-dispatch/internal/handler/http/respond"
	notifyUC "osiri-dispatch/internal/usecase/notify"
)

// StatsHandler reports each processor's rolling counters.
type StatsHandler struct{ Svc notifyUC.Service }

func (h StatsHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, StatsResponse{Platforms: h.Svc.ProcessorStats()})
}
