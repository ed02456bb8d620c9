package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notifgate/internal/retry"
	"notifgate/internal/types"
)

// Provider is the outbound delivery collaborator invoked for each dequeued
// notification. Send returns a provider-side delivery id on success.
type Provider interface {
	Send(ctx context.Context, req *types.NotificationRequest) (string, error)
}

// OutcomeEmitter receives the outcome of each dispatched notification and
// fans it out to subscribed webhooks.
type OutcomeEmitter interface {
	Emit(ctx context.Context, event types.OutcomeEvent)
}

// DeadLetterSink archives items whose delivery budget is exhausted.
type DeadLetterSink interface {
	Insert(ctx context.Context, rec *types.DeadLetterRecord) error
}

// WorkerConfig tunes the dispatch worker.
type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	Policy       retry.Policy
}

// Worker drains the dispatch queue: it claims ordered batches, sends each
// item through the delivery provider under the retry policy, and settles
// items as done or dead. Dead items are archived as dead letters with
// reason "retries exhausted".
type Worker struct {
	queue       *DispatchQueue
	provider    Provider
	deadLetters DeadLetterSink
	outcomes    OutcomeEmitter
	executor    *retry.Executor
	cfg         WorkerConfig
	clock       types.Clock
	logger      types.Logger
}

// NewWorker creates a dispatch worker.
func NewWorker(q *DispatchQueue, provider Provider, deadLetters DeadLetterSink, outcomes OutcomeEmitter, executor *retry.Executor, cfg WorkerConfig, logger types.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Worker{
		queue:       q,
		provider:    provider,
		deadLetters: deadLetters,
		outcomes:    outcomes,
		executor:    executor,
		cfg:         cfg,
		clock:       types.RealClock{},
		logger:      logger,
	}
}

// SetClock replaces the worker's clock. Intended for tests.
func (w *Worker) SetClock(c types.Clock) {
	w.clock = c
}

// Run polls the queue until ctx is canceled. An empty batch waits one poll
// interval; a non-empty batch is followed by an immediate re-poll so a
// backlog drains at full speed.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("dispatch worker started",
		"batch_size", w.cfg.BatchSize,
		"poll_interval", w.cfg.PollInterval.String(),
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		n, err := w.ProcessBatch(ctx)
		if err != nil {
			w.logger.Error("batch processing failed", "error", err.Error())
		}
		if n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info("dispatch worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessBatch claims and settles one batch. It returns the number of items
// processed.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	items, err := w.queue.NextBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	for _, item := range items {
		w.processItem(ctx, item)
	}
	return len(items), nil
}

// processItem runs one item's full retry budget to completion. There is no
// mid-flight cancellation of an in-progress retry sequence.
func (w *Worker) processItem(ctx context.Context, item *types.QueueItem) {
	logger := w.logger.With(
		"queue_item_id", item.ID,
		"priority", string(item.PriorityTier),
		"correlation_id", item.Request.CorrelationID,
	)

	var deliveryID string
	result := w.executor.Execute(ctx, "provider send", w.cfg.Policy, func(attemptCtx context.Context) error {
		if _, err := w.queue.RecordAttempt(attemptCtx, item.ID); err != nil {
			logger.Warn("failed to record dispatch attempt", "error", err.Error())
		}
		id, err := w.provider.Send(attemptCtx, &item.Request)
		if err != nil {
			return err
		}
		deliveryID = id
		return nil
	})

	if result.Success {
		if err := w.queue.MarkDone(ctx, item.ID); err != nil {
			logger.Error("failed to mark item done", "error", err.Error())
		}
		logger.Info("notification delivered",
			"delivery_id", deliveryID,
			"attempts", result.Attempts,
		)
		w.emit(ctx, types.OutcomeDelivered, item, map[string]any{
			"delivery_id": deliveryID,
			"attempts":    result.Attempts,
		})
		return
	}

	if err := w.queue.MarkDead(ctx, item.ID); err != nil {
		logger.Error("failed to mark item dead", "error", err.Error())
	}
	logger.Error("notification delivery exhausted",
		"attempts", result.Attempts,
		"error", result.Err.Error(),
	)

	w.deadLetter(ctx, item, result, logger)
	w.emit(ctx, types.OutcomeFailed, item, map[string]any{
		"attempts": result.Attempts,
		"error":    result.Err.Error(),
	})
}

func (w *Worker) deadLetter(ctx context.Context, item *types.QueueItem, result retry.Result, logger types.Logger) {
	original, err := json.Marshal(item.Request)
	if err != nil {
		original = []byte(fmt.Sprintf(`{"queue_item_id":%q}`, item.ID))
	}

	rec := &types.DeadLetterRecord{
		ID:              uuid.NewString(),
		OriginalMessage: original,
		Reason:          types.DeadLetterRetriesExhausted,
		Detail:          fmt.Sprintf("delivery failed after %d attempts: %v", result.Attempts, result.Err),
		CorrelationID:   item.Request.CorrelationID,
		Timestamp:       w.clock.Now(),
	}
	if err := w.deadLetters.Insert(ctx, rec); err != nil {
		logger.Error("failed to archive dead letter", "error", err.Error())
	}
}

func (w *Worker) emit(ctx context.Context, eventType types.OutcomeEventType, item *types.QueueItem, data map[string]any) {
	if w.outcomes == nil {
		return
	}
	data["queue_item_id"] = item.ID
	w.outcomes.Emit(ctx, types.OutcomeEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		CorrelationID: item.Request.CorrelationID,
		OccurredAt:    w.clock.Now(),
		Data:          data,
	})
}
