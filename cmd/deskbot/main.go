package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/deskbot/internal/api/http"
	"github.com/spec-kit/deskbot/internal/api/http/handlers"
	"github.com/spec-kit/deskbot/internal/auth"
	"github.com/spec-kit/deskbot/internal/bot"
	"github.com/spec-kit/deskbot/internal/clock"
	"github.com/spec-kit/deskbot/internal/config"
	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/events"
	"github.com/spec-kit/deskbot/internal/observability"
	"github.com/spec-kit/deskbot/internal/persistence"
	slackconn "github.com/spec-kit/deskbot/internal/platform/slack"
	"github.com/spec-kit/deskbot/internal/repository"
	"github.com/spec-kit/deskbot/internal/scheduler"
	"github.com/spec-kit/deskbot/internal/service"
	"github.com/spec-kit/deskbot/internal/worker"
)

const bcryptCost = 12

func main() {
	envFile := pflag.String("env-file", "", "environment file to load instead of .env")
	settingsFile := pflag.String("settings", "", "YAML file seeding the panel settings (overrides SETTINGS_FILE)")
	hashPassword := pflag.String("hash-password", "", "print a bcrypt hash for AUTH_OPERATOR_PASSWORD_HASH and exit")
	pflag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashOperatorPassword(*hashPassword, bcryptCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *settingsFile != "" {
		cfg.SettingsFile = *settingsFile
	}

	logger, err := observability.NewLogger(cfg.Logger,
		zap.String("service", cfg.App.Name), zap.String("version", cfg.App.Version))
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("deskbot stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	settings := domain.Settings{}
	if cfg.SettingsFile != "" {
		seed, err := config.LoadSettings(cfg.SettingsFile)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		settings = seed
		logger.Info("settings seeded", zap.String("file", cfg.SettingsFile))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer rdb.Close()

	warnings := repository.NewWarningRepository()
	history := repository.NewMemoryTicketHistoryRepository()
	if pg.Enabled() {
		warnings = repository.NewPostgresWarningRepository(pg.PoolHandle())
		history = repository.NewTicketHistoryRepository(pg.PoolHandle())
	}
	cooldowns := repository.NewCooldownRepository()
	if rdb != nil {
		cooldowns = repository.NewRedisCooldownRepository(rdb.Client)
	}
	settingsRepo := repository.NewSettingsRepository(settings)

	slackClient, err := slackconn.New(cfg.Slack, logger, slackconn.WithCommandPrefix(cfg.Tickets.CommandPrefix))
	if err != nil {
		return err
	}

	clk := clock.Real()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	timers := scheduler.NewTimers(clk, logger)

	audit := service.NewAuditService(dispatcher, history, logger)
	worker.StartAuditWorker(audit)

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repository.NewTicketRepository(),
		Settings:   settingsRepo,
		Platform:   slackClient,
		Timers:     timers,
		Clock:      clk,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Config:     cfg.Tickets,
	})
	applications := service.NewApplicationService(service.ApplicationDependencies{
		CooldownRepo: cooldowns,
		Settings:     settingsRepo,
		Platform:     slackClient,
		Clock:        clk,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		Config:       cfg.Applications,
	})
	moderation := service.NewModerationService(warnings, slackClient, clk, dispatcher, logger)
	settingsSvc := service.NewSettingsService(settingsRepo, slackClient, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.App.Name, cfg.Auth.AccessTokenTTL())
	operators := service.NewOperatorService(cfg.Auth, tokens)

	janitor := scheduler.NewJanitor(logger.Named("janitor"))
	if err := worker.RegisterSweeps(janitor, applications, cfg.Applications.JanitorSpec); err != nil {
		return err
	}

	router := bot.NewRouter(bot.Dependencies{
		Tickets:      tickets,
		Applications: applications,
		Moderation:   moderation,
		Settings:     settingsSvc,
		Messenger:    slackClient,
		Metrics:      metrics,
		Logger:       logger,
		Prefix:       cfg.Tickets.CommandPrefix,
	})

	app := httptransport.NewServer(cfg.App.Name, logger, metrics, cfg.App.RequestTimeout(), httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rdb),
		Auth:           handlers.NewAuthHandler(operators),
		Ops:            handlers.NewOpsHandler(tickets, audit, moderation, settingsSvc),
		AuthMiddleware: auth.NewAuthMiddleware(operators.TokenManager()),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = janitor.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("ops server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			errCh <- fmt.Errorf("ops server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := slackClient.Run(ctx, router.Handle); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown", zap.Error(err))
	}
	wg.Wait()
	timers.Stop()
	return runErr
}
