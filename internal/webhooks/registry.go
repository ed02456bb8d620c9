// Package webhooks implements the webhook subscription registry and the
// outcome delivery dispatcher. Registered webhooks subscribe to outcome
// event types; the dispatcher signs and posts each matching event to the
// subscriber URL under the webhook's own retry policy.
package webhooks

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"notifgate/internal/db"
	"notifgate/internal/types"
)

// Store is the persistence contract the registry needs. Implemented by
// db.WebhookRepository.
type Store interface {
	Create(ctx context.Context, w *types.Webhook) error
	Update(ctx context.Context, w *types.Webhook) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*types.Webhook, error)
	Find(ctx context.Context, filter db.WebhookFilter, sort db.WebhookSort, page db.WebhookPage) ([]*types.Webhook, error)
	ListAttempts(ctx context.Context, webhookID string, limit int) ([]*types.DeliveryAttempt, error)
}

// CreateWebhookInput carries the fields needed to register a webhook.
type CreateWebhookInput struct {
	Name       string                   `json:"name" validate:"required,max=100"`
	URL        string                   `json:"url" validate:"required"`
	Events     []types.OutcomeEventType `json:"events" validate:"required,min=1"`
	Headers    map[string]string        `json:"headers,omitempty"`
	Secret     string                   `json:"secret,omitempty"`
	Timeout    time.Duration            `json:"timeout,omitempty"`
	RetryCount int                      `json:"retry_count,omitempty" validate:"min=0,max=10"`
	RetryDelay time.Duration            `json:"retry_delay,omitempty"`
	CreatedBy  string                   `json:"created_by" validate:"required"`
}

// UpdateWebhookInput carries a partial update; nil fields keep their
// current value.
type UpdateWebhookInput struct {
	Name       *string                   `json:"name,omitempty" validate:"omitempty,max=100"`
	URL        *string                   `json:"url,omitempty"`
	Events     *[]types.OutcomeEventType `json:"events,omitempty"`
	Headers    *map[string]string        `json:"headers,omitempty"`
	Secret     *string                   `json:"secret,omitempty"`
	IsActive   *bool                     `json:"is_active,omitempty"`
	Timeout    *time.Duration            `json:"timeout,omitempty"`
	RetryCount *int                      `json:"retry_count,omitempty" validate:"omitempty,min=0,max=10"`
	RetryDelay *time.Duration            `json:"retry_delay,omitempty"`
}

// Registry manages webhook subscriptions: create, update, delete, lookup
// and listing. Name uniqueness among active webhooks is enforced by the
// store; the registry enforces URL and event-set validity.
type Registry struct {
	store    Store
	validate *validator.Validate
	clock    types.Clock
	logger   types.Logger
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store Store, logger types.Logger) *Registry {
	return &Registry{
		store:    store,
		validate: validator.New(),
		clock:    types.RealClock{},
		logger:   logger,
	}
}

// SetClock replaces the registry's clock. Intended for tests.
func (r *Registry) SetClock(c types.Clock) {
	r.clock = c
}

// Create registers a new active webhook.
func (r *Registry) Create(ctx context.Context, input CreateWebhookInput) (*types.Webhook, error) {
	if err := r.validate.Struct(input); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "invalid webhook input", err)
	}
	if err := validateURL(input.URL); err != nil {
		return nil, err
	}
	if err := validateEvents(input.Events); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	w := &types.Webhook{
		ID:         uuid.NewString(),
		Name:       input.Name,
		URL:        input.URL,
		Events:     append([]types.OutcomeEventType(nil), input.Events...),
		Headers:    input.Headers,
		Secret:     types.SecretString(input.Secret),
		IsActive:   true,
		Timeout:    defaultDuration(input.Timeout, 10*time.Second),
		RetryCount: input.RetryCount,
		RetryDelay: defaultDuration(input.RetryDelay, 2*time.Second),
		CreatedBy:  input.CreatedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := r.store.Create(ctx, w); err != nil {
		return nil, err
	}

	r.logger.Info("webhook registered",
		"webhook_id", w.ID,
		"name", w.Name,
		"events", len(w.Events),
	)
	return w, nil
}

// Update applies a partial update to an existing webhook. Renames are
// subject to the same uniqueness rule as create.
func (r *Registry) Update(ctx context.Context, id string, input UpdateWebhookInput) (*types.Webhook, error) {
	if err := r.validate.Struct(input); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "invalid webhook input", err)
	}

	w, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		w.Name = *input.Name
	}
	if input.URL != nil {
		if err := validateURL(*input.URL); err != nil {
			return nil, err
		}
		w.URL = *input.URL
	}
	if input.Events != nil {
		if err := validateEvents(*input.Events); err != nil {
			return nil, err
		}
		w.Events = append([]types.OutcomeEventType(nil), (*input.Events)...)
	}
	if input.Headers != nil {
		w.Headers = *input.Headers
	}
	if input.Secret != nil {
		w.Secret = types.SecretString(*input.Secret)
	}
	if input.IsActive != nil {
		w.IsActive = *input.IsActive
	}
	if input.Timeout != nil {
		w.Timeout = *input.Timeout
	}
	if input.RetryCount != nil {
		w.RetryCount = *input.RetryCount
	}
	if input.RetryDelay != nil {
		w.RetryDelay = *input.RetryDelay
	}
	w.UpdatedAt = r.clock.Now()

	if err := r.store.Update(ctx, w); err != nil {
		return nil, err
	}

	r.logger.Info("webhook updated", "webhook_id", w.ID, "name", w.Name)
	return w, nil
}

// Delete removes a webhook, freeing its name for reuse.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("webhook deleted", "webhook_id", id)
	return nil
}

// Get retrieves a single webhook by id.
func (r *Registry) Get(ctx context.Context, id string) (*types.Webhook, error) {
	return r.store.GetByID(ctx, id)
}

// Find lists webhooks with filters, sorting and pagination. Deactivated
// webhooks remain queryable.
func (r *Registry) Find(ctx context.Context, filter db.WebhookFilter, sort db.WebhookSort, page db.WebhookPage) ([]*types.Webhook, error) {
	return r.store.Find(ctx, filter, sort, page)
}

// ListAttempts returns a webhook's delivery history, most recent first.
func (r *Registry) ListAttempts(ctx context.Context, webhookID string, limit int) ([]*types.DeliveryAttempt, error) {
	if _, err := r.store.GetByID(ctx, webhookID); err != nil {
		return nil, err
	}
	return r.store.ListAttempts(ctx, webhookID, limit)
}

func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return types.NewAppError(types.ErrCodeValidationInvalidURL,
			fmt.Sprintf("%q is not a valid http(s) URL", raw), err)
	}
	return nil
}

func validateEvents(events []types.OutcomeEventType) error {
	if len(events) == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidEvents,
			"events must be a non-empty subset of the outcome event types", nil)
	}
	for _, e := range events {
		if !types.ValidOutcomeEventType(e) {
			return types.NewAppError(types.ErrCodeValidationInvalidEvents,
				fmt.Sprintf("unknown outcome event type %q", e), nil)
		}
	}
	return nil
}

func defaultDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
