// Package app assembles the dispatch engine from configuration. Both
// binaries build the same engine; the worker drives it from cron and the API
// from HTTP requests.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"osiri-dispatch/internal/domain/entity"
	pgRepo "osiri-dispatch/internal/infra/adapter/persistence/postgres"
	"osiri-dispatch/internal/infra/notifier"
	workerPkg "osiri-dispatch/internal/infra/worker"
	"osiri-dispatch/internal/pkg/config"
	"osiri-dispatch/internal/resilience/circuitbreaker"
	"osiri-dispatch/internal/usecase/notify"
)

// Providers holds outbound credentials and endpoints.
//
//	SLACK_CLIENT_ID, SLACK_CLIENT_SECRET  refresh grant credentials
//	SLACK_API_BASE_URL                    (https://slack.com/api)
//	DISCORD_BOT_TOKEN                     Discord is disabled when empty
//	DISCORD_API_BASE_URL                  (https://discord.com/api/v10)
type Providers struct {
	SlackClientID     string
	SlackClientSecret string
	SlackAPIBaseURL   string
	DiscordBotToken   string
	DiscordAPIBaseURL string
}

// LoadProviders reads Providers from the environment. Invalid base URLs
// fall back to the public endpoints. Secrets are never logged.
func LoadProviders(logger *slog.Logger, metrics *config.ConfigMetrics) Providers {
	l := config.NewLoader(logger, metrics)
	p := Providers{
		SlackClientID:     config.LoadEnvString("SLACK_CLIENT_ID", ""),
		SlackClientSecret: config.LoadEnvString("SLACK_CLIENT_SECRET", ""),
		DiscordBotToken:   config.LoadEnvString("DISCORD_BOT_TOKEN", ""),
	}
	p.SlackAPIBaseURL = config.Track(l, "slack_api_base_url",
		config.LoadEnvWithFallback("SLACK_API_BASE_URL", notifier.DefaultSlackBaseURL, config.ValidateBaseURL))
	p.DiscordAPIBaseURL = config.Track(l, "discord_api_base_url",
		config.LoadEnvWithFallback("DISCORD_API_BASE_URL", notifier.DefaultDiscordBaseURL, config.ValidateBaseURL))
	l.Finish()
	return p
}

// Engine is the wired dispatch engine plus the handles the binaries probe
// for health.
type Engine struct {
	Service   notify.Service
	DBBreaker *circuitbreaker.DBCircuitBreaker
	Slack     *notifier.SlackClient
	Discord   *notifier.DiscordClient
	Platforms []entity.Platform
}

// NewEngine builds repositories, provider clients, processors and the notify
// service on top of db.
func NewEngine(db *sql.DB, cfg *workerPkg.WorkerConfig, providers Providers, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	platformCfgs, err := cfg.PlatformConfigs()
	if err != nil {
		return nil, fmt.Errorf("platform configs: %w", err)
	}

	breaker := circuitbreaker.NewDBCircuitBreaker(db)
	dbtx := pgRepo.Instrument(breaker)
	content := pgRepo.NewContentRepo(dbtx)
	channels := pgRepo.NewChannelRepo(dbtx)
	logs := pgRepo.NewNotificationLogRepo(dbtx)
	orgs := pgRepo.NewOrganizationRepo(dbtx)
	conns := pgRepo.NewWorkspaceConnectionRepo(dbtx)

	quota := notify.NewQuotaGuard(orgs, cfg.QuotaLocation())
	engine := &Engine{DBBreaker: breaker}
	var processors []notify.Processor

	if pc, ok := platformCfgs[entity.PlatformSlack]; ok {
		if providers.SlackClientID == "" || providers.SlackClientSecret == "" {
			logger.Warn("Slack OAuth client is not configured, expiring tokens cannot be refreshed")
		}
		slackCfg := notifier.DefaultSlackConfig()
		slackCfg.BaseURL = providers.SlackAPIBaseURL
		engine.Slack = notifier.NewSlackClient(slackCfg)

		refresher := notifier.NewSlackTokenRefresher(notifier.SlackOAuthConfig{
			ClientID:     providers.SlackClientID,
			ClientSecret: providers.SlackClientSecret,
			BaseURL:      providers.SlackAPIBaseURL,
		})
		tokens := notify.NewSlackTokenManager(conns, refresher, notify.RefreshPolicyOnExpiry)
		sender := notify.NewSlackSender(content, tokens, engine.Slack)
		processors = append(processors, notify.NewProcessor(entity.PlatformSlack, pc, sender, logs, quota))
	}

	if pc, ok := platformCfgs[entity.PlatformDiscord]; ok {
		if providers.DiscordBotToken == "" {
			logger.Warn("DISCORD_BOT_TOKEN is empty, Discord delivery disabled")
		} else {
			discordCfg := notifier.DefaultDiscordConfig(providers.DiscordBotToken)
			discordCfg.BaseURL = providers.DiscordAPIBaseURL
			engine.Discord = notifier.NewDiscordClient(discordCfg)
			sender := notify.NewDiscordSender(content, engine.Discord)
			processors = append(processors, notify.NewProcessor(entity.PlatformDiscord, pc, sender, logs, quota))
		}
	}

	if len(processors) == 0 {
		return nil, errors.New("no notification platform is configured")
	}
	for _, p := range processors {
		engine.Platforms = append(engine.Platforms, p.Platform())
	}
	slices.Sort(engine.Platforms)

	registry := notify.NewRegistry(processors...)
	resolver := notify.NewResolver(content, channels, logs, cfg.ResolverConfig())
	orchestrator := notify.NewOrchestrator(resolver, channels, logs, registry, cfg.OrchestratorConfig())
	engine.Service = notify.NewService(resolver, orchestrator, channels, logs, registry)

	logger.Info("dispatch engine initialized",
		slog.Any("platforms", engine.Platforms),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("resolver_limit", cfg.ResolverLimit),
		slog.Bool("resolver_retry_failed", cfg.ResolverRetryFailed),
		slog.String("quota_timezone", cfg.QuotaTimezone))
	return engine, nil
}

// CircuitChecks returns one probe per open-able circuit: the database and
// each configured provider. A probe fails while its breaker is open.
func (e *Engine) CircuitChecks() []workerPkg.ReadinessCheck {
	checks := []workerPkg.ReadinessCheck{workerPkg.BreakerCheck("database_circuit", e.DBBreaker.IsOpen)}
	if e.Slack != nil {
		checks = append(checks, workerPkg.BreakerCheck("slack", e.Slack.CircuitOpen))
	}
	if e.Discord != nil {
		checks = append(checks, workerPkg.BreakerCheck("discord", e.Discord.CircuitOpen))
	}
	return checks
}

// PingCheck probes db.
func PingCheck(db *sql.DB) workerPkg.ReadinessCheck {
	return workerPkg.ReadinessCheck{Name: "database", Check: func(ctx context.Context) error {
		return db.PingContext(ctx)
	}}
}
