// Package main is the entrypoint for the dispatch worker.
//
// The worker drains the dispatch queue in priority order, sends each
// notification through the delivery provider under the configured retry
// policy, and settles every item as done or dead. Exhausted items are
// archived as dead letters, and each terminal outcome is fanned out to
// subscribed webhooks.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"notifgate/internal/config"
	"notifgate/internal/db"
	"notifgate/internal/provider"
	"notifgate/internal/queue"
	"notifgate/internal/retry"
	"notifgate/internal/types"
	"notifgate/internal/webhooks"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// The types.Logger interface requires Info, Error, Warn, and With methods.
// slog.Logger satisfies the first three but With returns *slog.Logger, not
// types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

func newLogger(level, service string) types.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return &slogAdapter{logger: slog.New(h).With("service", service)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err.Error())
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.Service)
	logger.Info("starting dispatch worker",
		"environment", cfg.Environment,
		"batch_size", cfg.Queue.BatchSize,
		"poll_interval", cfg.Queue.PollInterval.String(),
	)

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.Database.URL.Unmask(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err.Error())
		os.Exit(1)
	}
	defer pool.Close()

	sender := provider.NewClient(provider.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.Provider.Timeout,
	}, nil, logger)

	webhookRepo := db.NewWebhookRepository(pool)
	executor := retry.NewExecutor(logger)
	dispatcher := webhooks.NewDispatcher(webhookRepo, nil, executor, logger)
	emitter := webhooks.NewEmitter(webhookRepo, dispatcher, cfg.Webhook.MaxInFlight, logger)

	dispatchQueue := queue.NewDispatchQueue(db.NewQueueRepository(pool), logger)

	worker := queue.NewWorker(
		dispatchQueue,
		sender,
		db.NewDeadLetterRepository(pool),
		emitter,
		executor,
		queue.WorkerConfig{
			BatchSize:    cfg.Queue.BatchSize,
			PollInterval: cfg.Queue.PollInterval,
			Policy: retry.Policy{
				MaxAttempts:   cfg.Queue.MaxAttempts,
				BaseDelay:     cfg.Queue.RetryDelay,
				BackoffFactor: 2.0,
			},
		},
		logger,
	)

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("dispatch worker stopped", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("dispatch worker shut down")
}
