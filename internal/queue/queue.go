// Package queue implements the priority dispatch queue: it persists
// canonical notification requests, orders them by priority tier then
// enqueue time, and hands ordered batches to the dispatch worker.
package queue

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"notifgate/internal/types"
)

// Store is the persistence contract the dispatch queue needs. Implemented
// by db.QueueRepository.
type Store interface {
	Upsert(ctx context.Context, item *types.QueueItem) error
	ClaimBatch(ctx context.Context, max int) ([]*types.QueueItem, error)
	UpdateStatus(ctx context.Context, id string, status types.QueueStatus) error
	IncrementAttempt(ctx context.Context, id string) (int, error)
}

// DispatchQueue orders and persists notification work. Items sharing a
// correlation id collapse to a single live work item (last write wins);
// items without one are always distinct.
type DispatchQueue struct {
	store  Store
	clock  types.Clock
	logger types.Logger
}

// NewDispatchQueue creates a DispatchQueue over the given store.
func NewDispatchQueue(store Store, logger types.Logger) *DispatchQueue {
	return &DispatchQueue{
		store:  store,
		clock:  types.RealClock{},
		logger: logger,
	}
}

// SetClock replaces the queue's clock. Intended for tests.
func (q *DispatchQueue) SetClock(c types.Clock) {
	q.clock = c
}

// Enqueue persists a notification request as a pending queue item. The
// request is copied into the item; callers must not mutate it afterwards.
func (q *DispatchQueue) Enqueue(ctx context.Context, req *types.NotificationRequest) (*types.QueueItem, error) {
	tier := req.Priority
	if !tier.Valid() {
		tier = types.PriorityNormal
	}

	item := &types.QueueItem{
		ID:           uuid.NewString(),
		Request:      *req,
		PriorityTier: tier,
		EnqueuedAt:   q.clock.Now(),
		AttemptCount: 0,
		Status:       types.QueueStatusPending,
	}

	if err := q.store.Upsert(ctx, item); err != nil {
		return nil, err
	}

	q.logger.Info("notification enqueued",
		"queue_item_id", item.ID,
		"priority", string(item.PriorityTier),
		"correlation_id", req.CorrelationID,
	)
	return item, nil
}

// NextBatch claims up to max pending items and returns them ordered by
// priority tier (urgent first), then enqueue time ascending within a tier.
// Claimed items transition to processing.
func (q *DispatchQueue) NextBatch(ctx context.Context, max int) ([]*types.QueueItem, error) {
	if max <= 0 {
		return nil, nil
	}

	items, err := q.store.ClaimBatch(ctx, max)
	if err != nil {
		return nil, err
	}

	// The claim query orders its selection but RETURNING row order is
	// unspecified, so the strict tie-break is re-applied here.
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].PriorityTier.Rank(), items[j].PriorityTier.Rank()
		if ri != rj {
			return ri < rj
		}
		return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
	})

	return items, nil
}

// MarkDone transitions an item to its successful terminal state.
func (q *DispatchQueue) MarkDone(ctx context.Context, id string) error {
	return q.store.UpdateStatus(ctx, id, types.QueueStatusDone)
}

// MarkDead transitions an item to its failed terminal state. Only the
// dispatch worker calls this, after its own retry budget is exhausted.
func (q *DispatchQueue) MarkDead(ctx context.Context, id string) error {
	return q.store.UpdateStatus(ctx, id, types.QueueStatusDead)
}

// RecordAttempt bumps the item's attempt counter and returns the new count.
func (q *DispatchQueue) RecordAttempt(ctx context.Context, id string) (int, error) {
	return q.store.IncrementAttempt(ctx, id)
}
