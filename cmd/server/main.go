package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ovalline/opsdesk/internal/api"
	"github.com/ovalline/opsdesk/internal/calendar"
	"github.com/ovalline/opsdesk/internal/config"
	"github.com/ovalline/opsdesk/internal/outbox"
	"github.com/ovalline/opsdesk/internal/payments"
	"github.com/ovalline/opsdesk/internal/recon"
	"github.com/ovalline/opsdesk/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	calendarClient := calendar.NewHTTPClient(cfg.CalendarBaseURL, cfg.CalendarAPIKey)
	paymentsClient := payments.NewHTTPClient(cfg.PaymentsBaseURL, cfg.PaymentsAPIKey)

	handlers := outbox.NewHandlers(pgStore, calendarClient, logger)
	dispatcher := outbox.NewDispatcher(pgStore, handlers.Routes(), logger, cfg.OutboxMaxAttempts)
	lease := outbox.NewLease(redisStore.Client(), 30*time.Second)

	matcher := recon.NewMatcher(pgStore)
	runner := recon.NewRunner(pgStore, paymentsClient, matcher, logger)

	// Background poller; cancelled on shutdown.
	pollCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	poller := outbox.NewPoller(dispatcher, lease, logger, cfg.PollInterval, cfg.DispatchLimit)
	go poller.Run(pollCtx)

	health := api.NewHealthHandler(pgStore, redisStore)
	router := api.NewRouter(pgStore, health, dispatcher, lease, runner, logger, cfg.APIToken)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopPoller()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
