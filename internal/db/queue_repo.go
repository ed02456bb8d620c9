package db

import (
	"context"
	"encoding/json"
	"time"

	"notifgate/internal/types"
)

// QueueRepository provides data access for the queue_items table. The table
// stores the canonical request as JSONB alongside extracted ordering columns
// (priority_rank, enqueued_at) so the batch query can sort without parsing
// JSON. A unique index on correlation_id (NULLs distinct) backs the
// last-write-wins upsert.
type QueueRepository struct {
	db DBTX
}

// NewQueueRepository creates a QueueRepository backed by the given database
// connection (pool or transaction).
func NewQueueRepository(db DBTX) *QueueRepository {
	return &QueueRepository{db: db}
}

// Upsert inserts a queue item, replacing any live item that shares the same
// correlation id (last write wins). Items without a correlation id are
// always inserted as distinct work. Returns the stored item's id, which is
// the surviving id when a replace occurred.
func (r *QueueRepository) Upsert(ctx context.Context, item *types.QueueItem) error {
	request, err := json.Marshal(item.Request)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode queue item request", err)
	}

	if item.Request.CorrelationID == "" {
		_, err = r.db.Exec(ctx,
			`INSERT INTO queue_items
			 (id, correlation_id, request, priority, priority_rank, status, enqueued_at, attempt_count)
			 VALUES ($1, NULL, $2, $3, $4, $5, $6, $7)`,
			item.ID,
			request,
			string(item.PriorityTier),
			item.PriorityTier.Rank(),
			string(item.Status),
			item.EnqueuedAt,
			item.AttemptCount,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeTransientStore, "failed to insert queue item", err)
		}
		return nil
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO queue_items
		 (id, correlation_id, request, priority, priority_rank, status, enqueued_at, attempt_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (correlation_id) DO UPDATE SET
			request = EXCLUDED.request,
			priority = EXCLUDED.priority,
			priority_rank = EXCLUDED.priority_rank,
			status = EXCLUDED.status,
			enqueued_at = EXCLUDED.enqueued_at,
			attempt_count = 0
		 RETURNING id`,
		item.ID,
		item.Request.CorrelationID,
		request,
		string(item.PriorityTier),
		item.PriorityTier.Rank(),
		string(item.Status),
		item.EnqueuedAt,
		item.AttemptCount,
	)
	if err := row.Scan(&item.ID); err != nil {
		return types.NewAppError(types.ErrCodeTransientStore, "failed to upsert queue item", err)
	}
	return nil
}

// ClaimBatch atomically transitions up to max pending items to processing
// and returns them. SKIP LOCKED keeps concurrent workers from claiming the
// same rows. Row order from RETURNING is not guaranteed; callers re-sort by
// (priority rank, enqueued_at).
func (r *QueueRepository) ClaimBatch(ctx context.Context, max int) ([]*types.QueueItem, error) {
	if max <= 0 {
		max = 50
	}

	rows, err := r.db.Query(ctx,
		`UPDATE queue_items SET status = 'processing'
		 WHERE id IN (
			SELECT id FROM queue_items
			WHERE status = 'pending'
			ORDER BY priority_rank ASC, enqueued_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, request, priority, enqueued_at, attempt_count, status`,
		max,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeTransientStore, "failed to claim queue batch", err)
	}
	defer rows.Close()

	var items []*types.QueueItem
	for rows.Next() {
		item, scanErr := scanQueueItem(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan queue item row", scanErr)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeTransientStore, "error iterating queue item rows", err)
	}

	return items, nil
}

// UpdateStatus transitions a queue item to the given status.
func (r *QueueRepository) UpdateStatus(ctx context.Context, id string, status types.QueueStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE queue_items SET status = $1 WHERE id = $2`,
		string(status),
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeTransientStore, "failed to update queue item status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundQueueItem, "queue item not found", nil)
	}
	return nil
}

// IncrementAttempt bumps the attempt counter for a queue item and returns
// the new count.
func (r *QueueRepository) IncrementAttempt(ctx context.Context, id string) (int, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE queue_items SET attempt_count = attempt_count + 1
		 WHERE id = $1
		 RETURNING attempt_count`,
		id,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, types.NewAppError(types.ErrCodeTransientStore, "failed to increment queue item attempt", err)
	}
	return count, nil
}

// rowScanner is the subset of pgx.Rows/pgx.Row needed by scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanQueueItem scans one queue_items row.
func scanQueueItem(row rowScanner) (*types.QueueItem, error) {
	var (
		item       types.QueueItem
		request    []byte
		priority   string
		status     string
		enqueuedAt time.Time
	)

	if err := row.Scan(&item.ID, &request, &priority, &enqueuedAt, &item.AttemptCount, &status); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(request, &item.Request); err != nil {
		return nil, err
	}
	item.PriorityTier = types.PriorityTier(priority)
	item.Status = types.QueueStatus(status)
	item.EnqueuedAt = enqueuedAt

	return &item, nil
}
