package db

import (
	"context"
	"time"

	"notifgate/internal/types"
)

// DeadLetterRepository archives dead-lettered messages in the dead_letters
// table for operator inspection. Records are append-only; there is no
// update path.
type DeadLetterRepository struct {
	db DBTX
}

// NewDeadLetterRepository creates a DeadLetterRepository backed by the
// given database connection (pool or transaction).
func NewDeadLetterRepository(db DBTX) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

// Insert appends one dead letter record.
func (r *DeadLetterRepository) Insert(ctx context.Context, rec *types.DeadLetterRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO dead_letters
		 (id, original_message, reason, detail, correlation_id, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID,
		[]byte(rec.OriginalMessage),
		string(rec.Reason),
		nilIfEmpty(rec.Detail),
		nilIfEmpty(rec.CorrelationID),
		rec.Timestamp,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeTransientStore, "failed to archive dead letter", err)
	}
	return nil
}

// ListRecent returns the most recent dead letters, newest first.
func (r *DeadLetterRepository) ListRecent(ctx context.Context, limit int) ([]*types.DeadLetterRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, original_message, reason, detail, correlation_id, timestamp
		 FROM dead_letters
		 ORDER BY timestamp DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list dead letters", err)
	}
	defer rows.Close()

	var results []*types.DeadLetterRecord
	for rows.Next() {
		var (
			rec           types.DeadLetterRecord
			original      []byte
			reason        string
			detail        *string
			correlationID *string
			ts            time.Time
		)
		if scanErr := rows.Scan(&rec.ID, &original, &reason, &detail, &correlationID, &ts); scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan dead letter row", scanErr)
		}
		rec.OriginalMessage = original
		rec.Reason = types.DeadLetterReason(reason)
		if detail != nil {
			rec.Detail = *detail
		}
		if correlationID != nil {
			rec.CorrelationID = *correlationID
		}
		rec.Timestamp = ts
		results = append(results, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating dead letter rows", err)
	}

	return results, nil
}
