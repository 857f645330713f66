// Package notification exposes the dispatch engine over HTTP.
package notification

import (
	"log/slog"
	"net/http"

	notifyUC "osiri-dispatch/internal/usecase/notify"
)

// Register mounts the notification endpoints on mux, each wrapped by authz.
func Register(mux *http.ServeMux, svc notifyUC.Service, authz func(http.Handler) http.Handler, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	mux.Handle("POST /notifications/dispatch", authz(DispatchHandler{Svc: svc, Logger: logger}))
	mux.Handle("POST /notifications/pending", authz(PendingHandler{Svc: svc}))
	mux.Handle("POST /notifications/send", authz(SendHandler{Svc: svc, Logger: logger}))
	mux.Handle("GET  /notifications/stats", authz(StatsHandler{Svc: svc}))
}
