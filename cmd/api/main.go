package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"osiri-dispatch/internal/app"
	hhttp "osiri-dispatch/internal/handler/http"
	"osiri-dispatch/internal/infra/db"
	workerPkg "osiri-dispatch/internal/infra/worker"
	"osiri-dispatch/internal/observability/logging"
	"osiri-dispatch/internal/observability/metrics"
	"osiri-dispatch/internal/observability/tracing"
	"osiri-dispatch/internal/pkg/config"
)

const (
	minSecretLength = 32
	shutdownTimeout = 30 * time.Second
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	secret, err := loadJWTSecret()
	if err != nil {
		logger.Error("invalid JWT configuration", slog.Any("error", err))
		os.Exit(1)
	}

	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	if err := run(logger, database, secret); err != nil {
		logger.Error("api stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// loadJWTSecret validates JWT_SECRET: at least 32 bytes and not a common
// weak value.
func loadJWTSecret() ([]byte, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength)
	}
	for _, weak := range []string{"secret", "password", "changeme", "default"} {
		if secret == weak || secret == weak+"123" {
			return nil, errors.New("JWT_SECRET must not be a common weak value")
		}
	}
	return []byte(secret), nil
}

// initDatabase opens the database connection and runs migrations.
func initDatabase(logger *slog.Logger) *sql.DB {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Open(ctx)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.MigrateUp(ctx, database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := metrics.RegisterDBStats(nil, database, "dispatch"); err != nil {
		logger.Warn("database pool metrics unavailable", slog.Any("error", err))
	}
	return database
}

func getVersion() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	return "dev"
}

// apiSettings are the listener knobs read on top of the engine config.
type apiSettings struct {
	Port      int
	RateLimit int
	RateBurst int
	// WriteTimeout must cover a synchronous send including retries.
	WriteTimeout time.Duration
}

func loadAPISettings(logger *slog.Logger) apiSettings {
	l := config.NewLoader(logger, nil)
	inRange := func(min, max int) func(int) error {
		return func(v int) error { return config.ValidateIntRange(v, min, max) }
	}
	s := apiSettings{
		Port:      config.Track(l, "port", config.LoadEnvInt("PORT", 8080, inRange(1, 65535))),
		RateLimit: config.Track(l, "rate_limit", config.LoadEnvInt("API_RATE_LIMIT", 0, inRange(0, 10000))),
		RateBurst: config.Track(l, "rate_burst", config.LoadEnvInt("API_RATE_BURST", 20, inRange(1, 10000))),
		WriteTimeout: config.Track(l, "write_timeout", config.LoadEnvDuration("API_WRITE_TIMEOUT", 2*time.Minute,
			func(d time.Duration) error { return config.ValidateDuration(d, 10*time.Second, 10*time.Minute) })),
	}
	l.Finish()
	return s
}

func run(logger *slog.Logger, database *sql.DB, secret []byte) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.InstallProvider("api")
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	cfg, err := workerPkg.LoadConfigFromEnv(logger, nil)
	if err != nil {
		return fmt.Errorf("load dispatch config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("dispatch config: %w", err)
	}
	engine, err := app.NewEngine(database, cfg, app.LoadProviders(logger, nil), logger)
	if err != nil {
		return err
	}

	var checks []hhttp.DependencyCheck
	for _, c := range engine.CircuitChecks() {
		checks = append(checks, hhttp.DependencyCheck{Name: c.Name, Check: c.Check})
	}

	settings := loadAPISettings(logger)
	version := getVersion()
	handler, err := hhttp.NewRouter(hhttp.RouterConfig{
		Service:      engine.Service,
		DB:           database,
		JWTSecret:    secret,
		Version:      version,
		Logger:       logger,
		HealthChecks: checks,
		RateLimit:    float64(settings.RateLimit),
		RateBurst:    settings.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	addr := fmt.Sprintf(":%d", settings.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      settings.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("version", version),
			slog.Any("platforms", engine.Platforms))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	if err := engine.Service.Shutdown(shutdownCtx); err != nil {
		logger.Warn("notify service shutdown incomplete", slog.Any("error", err))
	}
	logger.Info("server stopped")
	return nil
}
