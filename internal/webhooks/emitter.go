package webhooks

import (
	"context"

	"golang.org/x/sync/errgroup"

	"notifgate/internal/types"
)

// TargetResolver finds the active webhooks subscribed to an outcome event
// type. Implemented by db.WebhookRepository.
type TargetResolver interface {
	ListActiveByEvent(ctx context.Context, event types.OutcomeEventType) ([]*types.Webhook, error)
}

// Deliverer posts one event to one webhook. Implemented by Dispatcher.
type Deliverer interface {
	Deliver(ctx context.Context, webhook *types.Webhook, event types.OutcomeEvent) (*types.DeliveryAttempt, error)
}

// Emitter fans one outcome event out to every active subscribed webhook.
// Deliveries run concurrently, bounded by maxInFlight; a failed delivery to
// one subscriber never blocks the others.
type Emitter struct {
	resolver    TargetResolver
	deliverer   Deliverer
	maxInFlight int
	logger      types.Logger
}

// NewEmitter creates an Emitter.
func NewEmitter(resolver TargetResolver, deliverer Deliverer, maxInFlight int, logger types.Logger) *Emitter {
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	return &Emitter{
		resolver:    resolver,
		deliverer:   deliverer,
		maxInFlight: maxInFlight,
		logger:      logger,
	}
}

// Emit resolves the event's subscribers and delivers to each. Delivery
// failures surface as failed delivery attempts and logs; Emit itself never
// fails the caller's pipeline.
func (e *Emitter) Emit(ctx context.Context, event types.OutcomeEvent) {
	targets, err := e.resolver.ListActiveByEvent(ctx, event.Type)
	if err != nil {
		e.logger.Error("failed to resolve webhook targets",
			"event_type", string(event.Type),
			"error", err.Error(),
		)
		return
	}
	if len(targets) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxInFlight)
	for _, webhook := range targets {
		g.Go(func() error {
			if _, err := e.deliverer.Deliver(gctx, webhook, event); err != nil {
				e.logger.Warn("webhook delivery failed",
					"webhook_id", webhook.ID,
					"event_id", event.ID,
					"error", err.Error(),
				)
			}
			return nil
		})
	}
	g.Wait()
}
