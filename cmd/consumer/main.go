// Package main is the entrypoint for the notification consumer.
//
// The consumer reads domain events from the broker, validates and
// normalizes each envelope, and enqueues the resulting notification
// request on the dispatch queue. Messages that cannot be processed are
// routed to the dead-letter topic and archive; every message is
// committed exactly once, after it reaches a terminal state.
//
// Startup:
//  1. Initialize structured logger.
//  2. Load and validate configuration from the environment.
//  3. Connect the Postgres pool and the broker reader/writer.
//  4. Wire the dead-letter sink, normalizer, dispatch queue, and
//     notification handler.
//  5. Register the handler for the configured event types and run the
//     fetch loop until SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"notifgate/internal/broker"
	"notifgate/internal/config"
	"notifgate/internal/consumer"
	"notifgate/internal/db"
	"notifgate/internal/events"
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
	logger.Info("starting consumer", "environment", cfg.Environment, "topic", cfg.Broker.ConsumeTopic)

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

	dlqProducer := broker.NewProducer(broker.ProducerConfig{
		Brokers: cfg.Broker.Brokers,
		Topic:   cfg.Broker.DLQTopic,
	})
	defer dlqProducer.Close()

	sink := consumer.NewDeadLetterSink(dlqProducer, db.NewDeadLetterRepository(pool), logger)

	patterns, err := cfg.Redirect.Patterns()
	if err != nil {
		logger.Error("invalid redirect patterns", "error", err.Error())
		os.Exit(1)
	}
	normalizer := events.NewNormalizer(events.NewRedirectResolver(patterns, cfg.Redirect.DefaultPattern))

	webhookRepo := db.NewWebhookRepository(pool)
	executor := retry.NewExecutor(logger)
	dispatcher := webhooks.NewDispatcher(webhookRepo, nil, executor, logger)
	emitter := webhooks.NewEmitter(webhookRepo, dispatcher, cfg.Webhook.MaxInFlight, logger)
	sink.SetOutcomes(emitter)

	dispatchQueue := queue.NewDispatchQueue(db.NewQueueRepository(pool), logger)

	handler := consumer.NewNotificationHandler(
		normalizer,
		dispatchQueue,
		sink,
		emitter,
		executor,
		retry.Policy{
			MaxAttempts:   cfg.Queue.MaxAttempts,
			BaseDelay:     cfg.Queue.RetryDelay,
			BackoffFactor: 2.0,
		},
		logger,
	)

	source := broker.NewConsumer(broker.ConsumerConfig{
		Brokers:  cfg.Broker.Brokers,
		Topic:    cfg.Broker.ConsumeTopic,
		GroupID:  cfg.Broker.GroupID,
		Prefetch: cfg.Broker.Prefetch,
	}, logger)
	defer source.Close()

	c := consumer.NewConsumer(source, sink, cfg.Broker.Prefetch, logger)
	for _, eventType := range cfg.Broker.EventTypes {
		c.Register(eventType, handler)
	}

	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("consumer shut down")
}
