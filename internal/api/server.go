// Package api exposes the admin HTTP surface: webhook registry CRUD,
// delivery-attempt history, and dead-letter inspection. It is a thin layer
// over the registry and repositories; all policy lives below it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"notifgate/internal/types"
)

// DeadLetterLister reads recent dead letters. Implemented by
// db.DeadLetterRepository.
type DeadLetterLister interface {
	ListRecent(ctx context.Context, limit int) ([]*types.DeadLetterRecord, error)
}

// Server is the admin HTTP server.
type Server struct {
	router chi.Router
	http   *http.Server
	logger types.Logger
}

// NewServer builds the router and wires the handlers.
func NewServer(port string, handlers *WebhookHandlers, deadLetters DeadLetterLister, logger types.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/", handlers.Create)
		r.Get("/", handlers.List)
		r.Get("/{id}", handlers.Get)
		r.Patch("/{id}", handlers.Update)
		r.Delete("/{id}", handlers.Delete)
		r.Get("/{id}/attempts", handlers.ListAttempts)
	})

	r.Get("/dead-letters", deadLetterHandler(deadLetters, logger))

	return &Server{
		router: r,
		http: &http.Server{
			Addr:              ":" + port,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Router returns the underlying handler. Intended for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully within the
// given timeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("admin server shutting down")
	return s.http.Shutdown(shutdownCtx)
}

func deadLetterHandler(deadLetters DeadLetterLister, logger types.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := intQuery(r, "limit", 50)
		records, err := deadLetters.ListRecent(r.Context(), limit)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"dead_letters": records})
	}
}

// writeJSON serializes a response body. Encoding failures at this point can
// only be logged; the status line is already committed.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps an error to its HTTP representation. AppErrors carry
// their own status; anything else is a 500 with a generic message so
// internals never leak.
func writeError(w http.ResponseWriter, logger types.Logger, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.HTTPStatus(), map[string]any{
			"error": map[string]any{
				"code":    string(appErr.Code),
				"message": appErr.Message,
				"details": appErr.Details,
			},
		})
		return
	}

	logger.Error("unhandled error in http handler", "error", err.Error())
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"code":    string(types.ErrCodeInternalUnexpected),
			"message": "internal server error",
		},
	})
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
