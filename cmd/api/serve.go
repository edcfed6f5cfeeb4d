package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"payment-session-reconciler/config"
	httpHandler "payment-session-reconciler/internal/adapter/http/handler"
	"payment-session-reconciler/internal/adapter/ledger"
	"payment-session-reconciler/internal/adapter/notifier"
	pgStorage "payment-session-reconciler/internal/adapter/storage/postgres"
	redisStorage "payment-session-reconciler/internal/adapter/storage/redis"
	"payment-session-reconciler/internal/core/ports"
	"payment-session-reconciler/internal/reconciler"
	"payment-session-reconciler/internal/service"
	"payment-session-reconciler/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(load loadFunc) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reconciliation engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("migrate") {
				cfg.Database.AutoMigrate = migrate
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply schema migrations before starting (overrides database.auto_migrate)")
	return cmd
}

type closeNotifier interface {
	ports.Notifier
	Close() error
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}

	log.Info().
		Str("version", version).
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("match_mode", cfg.Reconciler.MatchMode).
		Msg("Starting payment session reconciler")

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(cfg.Database.MigrateURL(), logger.Component(log, "migrate")); err != nil {
			return err
		}
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, logger.Component(log, "postgres"))
	if err != nil {
		return fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	checkers := []ports.HealthChecker{pgStorage.NewHealthCheck(pool)}

	// Redis is optional: without it the API is not rate limited and sessions
	// are not leased across instances.
	var (
		rdb            *goredis.Client
		lease          ports.WorkerLease
		rateLimitStore *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, logger.Component(log, "redis"))
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running without leases and rate limits")
		} else {
			defer rdb.Close()
			lease = redisStorage.NewLeaseStore(rdb)
			rateLimitStore = redisStorage.NewRateLimitStore(rdb)
			checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
			log.Info().Msg("Redis connected")
		}
	}

	var notify closeNotifier
	if len(cfg.Notifier.Brokers) > 0 {
		writer := notifier.NewKafkaWriter(cfg.Notifier.Brokers, cfg.Notifier.Topic, cfg.Notifier.WriteTimeout)
		notify = notifier.NewKafkaNotifier(writer, logger.Component(log, "notifier"))
		log.Info().Strs("brokers", cfg.Notifier.Brokers).Str("topic", cfg.Notifier.Topic).Msg("Kafka notifier enabled")
	} else {
		notify = notifier.NewLogNotifier(logger.Component(log, "notifier"))
		log.Warn().Msg("No notifier brokers configured, notifications are only logged")
	}
	defer func() {
		if err := notify.Close(); err != nil {
			log.Error().Err(err).Msg("closing notifier")
		}
	}()

	matcher, err := reconciler.NewMatcher(reconciler.MatchMode(cfg.Reconciler.MatchMode), cfg.Reconciler.Denom)
	if err != nil {
		return err
	}

	repo := pgStorage.NewSessionRepo(pool)
	ledgerClient := ledger.NewClient(ledger.Config{
		BaseURL:         cfg.Ledger.BaseURL,
		Timeout:         cfg.Ledger.Timeout,
		PageLimit:       cfg.Ledger.PageLimit,
		BreakerFailures: uint32(cfg.Ledger.BreakerFailures),
		BreakerCooldown: cfg.Ledger.BreakerCooldown,
	}, logger.Component(log, "ledger"))

	dispatcher := reconciler.NewDispatcher(reconciler.WorkerDeps{
		Repo:     repo,
		Ledger:   ledgerClient,
		Notifier: notify,
		Matcher:  matcher,
	}, lease, reconciler.Config{
		Capacity:     cfg.Reconciler.Workers,
		PollInterval: cfg.Reconciler.PollInterval,
		WriteTimeout: cfg.Reconciler.WriteTimeout,
		LeaseTTL:     cfg.Reconciler.LeaseTTL,
		Owner:        cfg.Reconciler.InstanceID,
	}, logger.Component(log, "dispatcher"))

	if _, err := dispatcher.RecoverAll(ctx); err != nil {
		_ = dispatcher.Shutdown(cfg.Reconciler.ShutdownTimeout)
		return fmt.Errorf("recover pending sessions: %w", err)
	}
	if cfg.Reconciler.RecoveryInterval > 0 {
		go dispatcher.RunRecovery(ctx, cfg.Reconciler.RecoveryInterval)
	}

	sessionSvc := service.NewSessionService(repo, dispatcher, service.SessionConfig{
		DefaultWindow: cfg.Reconciler.SessionWindow,
		MaxWindow:     cfg.Reconciler.MaxWindow,
	}, logger.Component(log, "session"))
	tokenSvc := service.NewJWTTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		SessionSvc:     sessionSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: checkers,
		Logger:         logger.Component(log, "http"),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case err := <-serveErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Reconciler.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	// Stopped workers leave their sessions pending for the next recovery pass.
	if err := dispatcher.Shutdown(cfg.Reconciler.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("Reconciliation engine did not stop cleanly")
		return err
	}

	log.Info().Msg("Server exited")
	return nil
}
