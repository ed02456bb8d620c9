// Package consumer implements the broker consumption pipeline: it pulls
// raw messages, dispatches them by event type to registered handlers, and
// acknowledges each message only once it has reached a terminal state
// (enqueued or dead-lettered). A malformed message never halts consumption
// of subsequent messages.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"notifgate/internal/broker"
	"notifgate/internal/types"
)

// Source is the broker contract the consumer needs. Implemented by
// broker.Consumer.
type Source interface {
	Fetch(ctx context.Context) (broker.Message, error)
	Commit(ctx context.Context, msg broker.Message) error
}

// Consumer drives the per-message pipeline. Handlers are registered by
// event type before Run is called; the registry is read-only afterwards.
type Consumer struct {
	source       Source
	sink         Sink
	handlers     map[string]Handler
	commits      *commitTracker
	prefetch     int
	fetchBackoff time.Duration
	logger       types.Logger
}

// NewConsumer creates a consumer with the given prefetch bound. The bound
// caps concurrently in-flight unacknowledged messages and is the sole
// admission-control mechanism.
func NewConsumer(source Source, sink Sink, prefetch int, logger types.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 10
	}
	return &Consumer{
		source:       source,
		sink:         sink,
		handlers:     make(map[string]Handler),
		commits:      newCommitTracker(source, logger),
		prefetch:     prefetch,
		fetchBackoff: time.Second,
		logger:       logger,
	}
}

// Register maps an event type to its handler. Not safe to call after Run.
func (c *Consumer) Register(eventType string, h Handler) {
	c.handlers[eventType] = h
}

// Run consumes until ctx is canceled, then waits for in-flight messages to
// reach their terminal state before returning.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", "prefetch", c.prefetch, "handlers", len(c.handlers))

	tokens := make(chan struct{}, c.prefetch)
	var wg sync.WaitGroup

	// Cancellation stops fetching only. A message already handed to a
	// handler runs its full retry budget to a terminal state before the
	// ack/dead-letter decision, so handling uses a context that survives
	// shutdown; Run still waits for every in-flight message below.
	handleCtx := context.WithoutCancel(ctx)

	for {
		msg, err := c.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("fetch failed", "error", err.Error())
			select {
			case <-time.After(c.fetchBackoff):
			case <-ctx.Done():
			}
			continue
		}

		select {
		case tokens <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}

		c.commits.track(msg)
		wg.Add(1)
		go func(m broker.Message) {
			defer wg.Done()
			defer func() { <-tokens }()
			c.handleMessage(handleCtx, m)
		}(msg)
	}

	wg.Wait()
	c.logger.Info("consumer stopped")
	return ctx.Err()
}

// handleMessage processes one message to a terminal state, then hands it to
// the commit tracker, which acks it once every earlier message on its
// partition is terminal too. It never commits early and never leaves a
// message both unprocessed and uncommitted.
func (c *Consumer) handleMessage(ctx context.Context, msg broker.Message) {
	c.process(ctx, msg)
	c.commits.complete(ctx, msg)
}

// process runs the pipeline for one message. Panics are recovered here and
// dead-lettered with reason "unexpected error"; nothing escapes to crash
// the consuming process.
func (c *Consumer) process(ctx context.Context, msg broker.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("recovered panic while handling message", "panic", fmt.Sprint(r))
			c.sink.Route(ctx, msg.Value, types.DeadLetterUnexpectedError,
				fmt.Sprintf("panic: %v", r), "")
		}
	}()

	var env types.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		c.logger.Warn("message is not valid JSON", "error", err.Error())
		c.sink.Route(ctx, msg.Value, types.DeadLetterValidationFailed,
			fmt.Sprintf("malformed envelope: %v", err), "")
		return
	}

	handler, ok := c.handlers[env.EventType]
	if !ok {
		// Absence of interest is not failure: log and ack without
		// dead-lettering.
		c.logger.Info("no handler registered for event type, skipping",
			"event_type", env.EventType,
			"event_id", env.EventID,
		)
		return
	}

	if err := handler.Handle(ctx, msg.Value, &env); err != nil {
		c.logger.Error("handler failed unexpectedly",
			"event_type", env.EventType,
			"error", err.Error(),
		)
		c.sink.Route(ctx, msg.Value, types.DeadLetterUnexpectedError, err.Error(), env.CorrelationID)
	}
}
