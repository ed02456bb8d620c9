// Package main is the entrypoint for the admin HTTP API.
//
// The API exposes webhook registration CRUD, per-webhook delivery
// attempt history, and a recent dead-letter listing for operators.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"notifgate/internal/api"
	"notifgate/internal/config"
	"notifgate/internal/db"
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
	logger.Info("starting admin api", "environment", cfg.Environment, "port", cfg.Server.Port)

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

	registry := webhooks.NewRegistry(db.NewWebhookRepository(pool), logger)
	handlers := api.NewWebhookHandlers(registry, logger)
	server := api.NewServer(cfg.Server.Port, handlers, db.NewDeadLetterRepository(pool), logger)

	if err := server.Run(ctx, cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("server stopped", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("admin api shut down")
}
