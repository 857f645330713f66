package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"osiri-dispatch/internal/handler/http/responsewriter"
	"osiri-dispatch/internal/observability/metrics"
)

// knownRoutes bounds the path label. Anything else is reported as "other".
var knownRoutes = map[string]bool{
	"/health":                 true,
	"/ready":                  true,
	"/metrics":                true,
	"/notifications/dispatch": true,
	"/notifications/pending":  true,
	"/notifications/send":     true,
	"/notifications/stats":    true,
}

func routeLabel(path string) string {
	path = strings.TrimSuffix(path, "/")
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// MetricsMiddleware records request count, latency and sizes per route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		rw := responsewriter.Wrap(w)
		start := time.Now()
		next.ServeHTTP(rw, r)

		metrics.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), strconv.Itoa(rw.Status()),
			time.Since(start), int(r.ContentLength), rw.Size())
	})
}
