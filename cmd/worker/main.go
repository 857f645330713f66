package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"osiri-dispatch/internal/app"
	"osiri-dispatch/internal/handler/http/respond"
	"osiri-dispatch/internal/infra/db"
	workerPkg "osiri-dispatch/internal/infra/worker"
	"osiri-dispatch/internal/observability/logging"
	"osiri-dispatch/internal/observability/metrics"
	"osiri-dispatch/internal/observability/tracing"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker stopped with error", slog.String("error", respond.SanitizeError(err)))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.InstallProvider("worker")
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	// Fail-open: invalid values fall back to defaults.
	workerMetrics := workerPkg.NewWorkerMetrics()
	cfg, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return fmt.Errorf("load worker config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("worker config: %w", err)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Duration("batch_timeout", cfg.BatchTimeout),
		slog.Int("health_port", cfg.HealthPort))

	database, err := initDatabase(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	providers := app.LoadProviders(logger, workerMetrics.ConfigMetrics)
	engine, err := app.NewEngine(database, cfg, providers, logger)
	if err != nil {
		return err
	}

	checks := append([]workerPkg.ReadinessCheck{app.PingCheck(database)}, engine.CircuitChecks()...)
	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", cfg.HealthPort), logger, checks...)
	healthErr := make(chan error, 1)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			healthErr <- err
		}
	}()

	job := workerPkg.NewBatchJob(engine.Service, cfg.BatchTimeout, workerMetrics, logger)
	c := cron.New(cron.WithLocation(cfg.Location()))
	if _, err := c.AddFunc(cfg.CronSchedule, func() { job.Run(ctx) }); err != nil {
		return fmt.Errorf("schedule batch job: %w", err)
	}
	c.Start()
	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Any("platforms", engine.Platforms))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-healthErr:
		logger.Error("health server failed", slog.Any("error", err))
	}

	healthServer.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop returns a context that is done once running jobs have finished.
	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("cron jobs still running at shutdown timeout")
	}
	if err := engine.Service.Shutdown(shutdownCtx); err != nil {
		logger.Warn("notify service shutdown incomplete", slog.Any("error", err))
	}
	logger.Info("worker stopped")
	return nil
}

// initDatabase opens the pool, applies migrations and exports pool metrics.
func initDatabase(ctx context.Context, logger *slog.Logger) (*sql.DB, error) {
	database, err := db.Open(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(ctx, database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := metrics.RegisterDBStats(nil, database, "dispatch"); err != nil {
		logger.Warn("database pool metrics unavailable", slog.Any("error", err))
	}
	return database, nil
}
