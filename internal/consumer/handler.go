package consumer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"notifgate/internal/events"
	"notifgate/internal/retry"
	"notifgate/internal/types"
)

// Handler processes one parsed event envelope through to a terminal state.
// Implementations own their dead-letter routing; a returned error means the
// handler itself failed unexpectedly and the consumer dead-letters the
// message with reason "unexpected error".
type Handler interface {
	Handle(ctx context.Context, raw []byte, env *types.Envelope) error
}

// Enqueuer is the dispatch queue contract the notification handler needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, req *types.NotificationRequest) (*types.QueueItem, error)
}

// Sink is the dead-letter routing contract. Implemented by DeadLetterSink.
type Sink interface {
	Route(ctx context.Context, original []byte, reason types.DeadLetterReason, detail, correlationID string)
}

// OutcomeEmitter publishes pipeline outcome events to subscribed webhooks.
type OutcomeEmitter interface {
	Emit(ctx context.Context, event types.OutcomeEvent)
}

// NotificationHandler drives the per-message pipeline: validate, normalize,
// enqueue under the retry policy, dead-letter on terminal failure.
type NotificationHandler struct {
	normalizer *events.Normalizer
	queue      Enqueuer
	sink       Sink
	outcomes   OutcomeEmitter
	executor   *retry.Executor
	policy     retry.Policy
	clock      types.Clock
	logger     types.Logger
}

// NewNotificationHandler creates the pipeline handler. The outcomes emitter
// may be nil.
func NewNotificationHandler(normalizer *events.Normalizer, queue Enqueuer, sink Sink, outcomes OutcomeEmitter, executor *retry.Executor, policy retry.Policy, logger types.Logger) *NotificationHandler {
	return &NotificationHandler{
		normalizer: normalizer,
		queue:      queue,
		sink:       sink,
		outcomes:   outcomes,
		executor:   executor,
		policy:     policy,
		clock:      types.RealClock{},
		logger:     logger,
	}
}

// SetClock replaces the handler's clock. Intended for tests.
func (h *NotificationHandler) SetClock(c types.Clock) {
	h.clock = c
}

// Handle runs one envelope through validation, normalization and enqueue.
// Validation and normalization failures are terminal and dead-letter with
// reason "validation failed"; an exhausted enqueue budget dead-letters with
// reason "retries exhausted". All of these return nil: the message reached
// a terminal state.
func (h *NotificationHandler) Handle(ctx context.Context, raw []byte, env *types.Envelope) error {
	logger := h.logger.With("event_type", env.EventType, "event_id", env.EventID)

	if errs := events.Validate(env); len(errs) > 0 {
		details := make([]string, 0, len(errs))
		for _, e := range errs {
			details = append(details, e.Error())
		}
		logger.Warn("event failed validation", "errors", strings.Join(details, "; "))
		h.sink.Route(ctx, raw, types.DeadLetterValidationFailed, strings.Join(details, "; "), env.CorrelationID)
		return nil
	}

	req, err := h.normalizer.Normalize(env)
	if err != nil {
		// Normalization failures are validation-class: terminal, never
		// retried. The detail carries the distinct normalization code.
		logger.Warn("event failed normalization", "error", err.Error())
		h.sink.Route(ctx, raw, types.DeadLetterValidationFailed, err.Error(), env.CorrelationID)
		return nil
	}

	result := h.executor.Execute(ctx, "queue enqueue", h.policy, func(attemptCtx context.Context) error {
		_, err := h.queue.Enqueue(attemptCtx, req)
		return err
	})
	if !result.Success {
		detail := fmt.Sprintf("enqueue failed after %d attempts: %v", result.Attempts, result.Err)
		logger.Error("enqueue retries exhausted", "attempts", result.Attempts, "error", result.Err.Error())
		h.sink.Route(ctx, raw, types.DeadLetterRetriesExhausted, detail, req.CorrelationID)
		return nil
	}

	logger.Info("notification enqueued",
		"correlation_id", req.CorrelationID,
		"priority", string(req.Priority),
		"attempts", result.Attempts,
	)

	if h.outcomes != nil {
		h.outcomes.Emit(ctx, types.OutcomeEvent{
			ID:            uuid.NewString(),
			Type:          types.OutcomeEnqueued,
			CorrelationID: req.CorrelationID,
			OccurredAt:    h.clock.Now(),
			Data: map[string]any{
				"event_type":     env.EventType,
				"source_service": req.SourceService,
				"priority":       string(req.Priority),
			},
		})
	}

	return nil
}
