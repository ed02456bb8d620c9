package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"notifgate/internal/types"
)

// WebhookFilter narrows a webhook listing.
type WebhookFilter struct {
	Name     string // exact match when set
	IsActive *bool
	Event    types.OutcomeEventType // webhooks subscribed to this event
}

// WebhookSort orders a webhook listing. Field is one of "name",
// "created_at", "updated_at"; anything else falls back to created_at.
type WebhookSort struct {
	Field      string
	Descending bool
}

// WebhookPage bounds a webhook listing with limit/offset pagination.
type WebhookPage struct {
	Limit  int
	Offset int
}

// WebhookRepository provides data access for the webhooks and
// webhook_delivery_attempts tables. Name uniqueness among active webhooks
// is enforced by a partial unique index (ON webhooks (name) WHERE
// is_active); violations are translated to a conflict error.
type WebhookRepository struct {
	db DBTX
}

// NewWebhookRepository creates a WebhookRepository backed by the given
// database connection (pool or transaction).
func NewWebhookRepository(db DBTX) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Create inserts a new webhook. The caller must set the ID.
func (r *WebhookRepository) Create(ctx context.Context, w *types.Webhook) error {
	events, headers, err := encodeWebhookFields(w)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO webhooks
		 (id, name, url, events, headers, secret, is_active, timeout_ms,
		  retry_count, retry_delay_ms, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		w.ID,
		w.Name,
		w.URL,
		events,
		headers,
		w.Secret.Unmask(),
		w.IsActive,
		w.Timeout.Milliseconds(),
		w.RetryCount,
		w.RetryDelay.Milliseconds(),
		w.CreatedBy,
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictWebhookName,
				fmt.Sprintf("an active webhook named %q already exists", w.Name), err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create webhook", err)
	}
	return nil
}

// Update persists the mutable fields of a webhook (rename, URL change,
// event-set change, activate/deactivate, retry-policy change).
func (r *WebhookRepository) Update(ctx context.Context, w *types.Webhook) error {
	events, headers, err := encodeWebhookFields(w)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE webhooks SET
			name = $1,
			url = $2,
			events = $3,
			headers = $4,
			secret = $5,
			is_active = $6,
			timeout_ms = $7,
			retry_count = $8,
			retry_delay_ms = $9,
			updated_at = $10
		 WHERE id = $11`,
		w.Name,
		w.URL,
		events,
		headers,
		w.Secret.Unmask(),
		w.IsActive,
		w.Timeout.Milliseconds(),
		w.RetryCount,
		w.RetryDelay.Milliseconds(),
		w.UpdatedAt,
		w.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictWebhookName,
				fmt.Sprintf("an active webhook named %q already exists", w.Name), err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update webhook", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundWebhook, "webhook not found", nil)
	}
	return nil
}

// Delete removes a webhook. Deleting frees its name for reuse.
func (r *WebhookRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete webhook", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundWebhook, "webhook not found", nil)
	}
	return nil
}

// GetByID retrieves a single webhook by id.
func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*types.Webhook, error) {
	row := r.db.QueryRow(ctx, webhookSelect+` WHERE id = $1`, id)
	w, err := scanWebhook(row)
	if err != nil {
		if isNoRows(err) {
			return nil, types.NewAppError(types.ErrCodeNotFoundWebhook, "webhook not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get webhook", err)
	}
	return w, nil
}

// Find lists webhooks matching the filter with sorting and pagination.
// Deactivated webhooks remain queryable here; only delivery target
// resolution excludes them.
func (r *WebhookRepository) Find(ctx context.Context, filter WebhookFilter, sort WebhookSort, page WebhookPage) ([]*types.Webhook, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.Name != "" {
		conditions = append(conditions, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, filter.Name)
		argIdx++
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *filter.IsActive)
		argIdx++
	}
	if filter.Event != "" {
		conditions = append(conditions, fmt.Sprintf("events ? $%d", argIdx))
		args = append(args, string(filter.Event))
		argIdx++
	}

	query := webhookSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY " + sortColumn(sort.Field)
	if sort.Descending {
		query += " DESC"
	} else {
		query += " ASC"
	}

	limit := page.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, page.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list webhooks", err)
	}
	defer rows.Close()

	var results []*types.Webhook
	for rows.Next() {
		w, scanErr := scanWebhook(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan webhook row", scanErr)
		}
		results = append(results, w)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating webhook rows", err)
	}

	return results, nil
}

// ListActiveByEvent returns the active webhooks subscribed to the given
// outcome event type. This is the delivery target resolution query:
// deactivated webhooks are excluded here by definition.
func (r *WebhookRepository) ListActiveByEvent(ctx context.Context, event types.OutcomeEventType) ([]*types.Webhook, error) {
	rows, err := r.db.Query(ctx,
		webhookSelect+` WHERE is_active AND events ? $1 ORDER BY created_at ASC`,
		string(event),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeTransientStore, "failed to resolve webhook targets", err)
	}
	defer rows.Close()

	var results []*types.Webhook
	for rows.Next() {
		w, scanErr := scanWebhook(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan webhook row", scanErr)
		}
		results = append(results, w)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeTransientStore, "error iterating webhook rows", err)
	}

	return results, nil
}

// RecordAttempt appends one immutable delivery attempt record.
func (r *WebhookRepository) RecordAttempt(ctx context.Context, a *types.DeliveryAttempt) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO webhook_delivery_attempts
		 (id, webhook_id, event_id, status, attempt, sent_at, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID,
		a.WebhookID,
		a.EventID,
		string(a.Status),
		a.Attempt,
		a.SentAt,
		nilIfEmpty(a.Error),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record delivery attempt", err)
	}
	return nil
}

// ListAttempts returns the delivery attempts for a webhook, most recent
// first.
func (r *WebhookRepository) ListAttempts(ctx context.Context, webhookID string, limit int) ([]*types.DeliveryAttempt, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, webhook_id, event_id, status, attempt, sent_at, error
		 FROM webhook_delivery_attempts
		 WHERE webhook_id = $1
		 ORDER BY sent_at DESC NULLS LAST, id DESC
		 LIMIT $2`,
		webhookID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list delivery attempts", err)
	}
	defer rows.Close()

	var results []*types.DeliveryAttempt
	for rows.Next() {
		var (
			a       types.DeliveryAttempt
			status  string
			sentAt  *time.Time
			errText *string
		)
		if scanErr := rows.Scan(&a.ID, &a.WebhookID, &a.EventID, &status, &a.Attempt, &sentAt, &errText); scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan delivery attempt row", scanErr)
		}
		a.Status = types.DeliveryStatus(status)
		a.SentAt = sentAt
		if errText != nil {
			a.Error = *errText
		}
		results = append(results, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating delivery attempt rows", err)
	}

	return results, nil
}

const webhookSelect = `SELECT id, name, url, events, headers, secret, is_active,
	timeout_ms, retry_count, retry_delay_ms, created_by, created_at, updated_at
 FROM webhooks`

// sortColumn whitelists sortable columns to keep ORDER BY injection-safe.
func sortColumn(field string) string {
	switch field {
	case "name":
		return "name"
	case "updated_at":
		return "updated_at"
	default:
		return "created_at"
	}
}

// encodeWebhookFields serializes the events and headers JSONB columns.
func encodeWebhookFields(w *types.Webhook) (events []byte, headers []byte, err error) {
	events, err = json.Marshal(w.Events)
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to encode webhook events", err)
	}
	if w.Headers != nil {
		headers, err = json.Marshal(w.Headers)
		if err != nil {
			return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to encode webhook headers", err)
		}
	} else {
		headers = []byte("{}")
	}
	return events, headers, nil
}

// scanWebhook scans one webhooks row.
func scanWebhook(row rowScanner) (*types.Webhook, error) {
	var (
		w            types.Webhook
		events       []byte
		headers      []byte
		secret       string
		timeoutMs    int64
		retryDelayMs int64
	)

	err := row.Scan(
		&w.ID,
		&w.Name,
		&w.URL,
		&events,
		&headers,
		&secret,
		&w.IsActive,
		&timeoutMs,
		&w.RetryCount,
		&retryDelayMs,
		&w.CreatedBy,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(events, &w.Events); err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &w.Headers); err != nil {
			return nil, err
		}
	}
	w.Secret = types.SecretString(secret)
	w.Timeout = time.Duration(timeoutMs) * time.Millisecond
	w.RetryDelay = time.Duration(retryDelayMs) * time.Millisecond

	return &w, nil
}
