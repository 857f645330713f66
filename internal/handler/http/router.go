package http

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"osiri-dispatch/internal/handler/http/auth"
	"osiri-dispatch/internal/handler/http/notification"
	"osiri-dispatch/internal/handler/http/requestid"
	"osiri-dispatch/internal/observability/tracing"
	notifyUC "osiri-dispatch/internal/usecase/notify"
)

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Service   notifyUC.Service
	DB        *sql.DB
	JWTSecret []byte
	Version   string
	Logger    *slog.Logger

	// HealthChecks are reported by /health in addition to the database.
	HealthChecks []DependencyCheck

	// RateLimit is the per-client request rate; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// NewRouter builds the API handler: public probes and metrics, the
// JWT-protected notification endpoints, and the shared middleware chain.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authz, err := auth.NewAuthz(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", &HealthHandler{DB: cfg.DB, Version: cfg.Version, Checks: cfg.HealthChecks})
	mux.Handle("GET /ready", &ReadyHandler{DB: cfg.DB})
	mux.Handle("GET /metrics", promhttp.Handler())
	notification.Register(mux, cfg.Service, authz, logger)

	var h http.Handler = mux
	if cfg.RateLimit > 0 {
		h = NewRateLimiter(cfg.RateLimit, max(cfg.RateBurst, 1)).Limit(h)
	}
	h = InputLimits(h)
	h = MetricsMiddleware(h)
	h = Recover(logger)(h)
	h = Logging(logger)(h)
	h = tracing.Middleware(h)
	h = requestid.Middleware(h)
	return h, nil
}
