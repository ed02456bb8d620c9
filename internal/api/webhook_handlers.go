package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"notifgate/internal/db"
	"notifgate/internal/types"
	"notifgate/internal/webhooks"
)

// WebhookHandlers serves the webhook registry endpoints.
type WebhookHandlers struct {
	registry *webhooks.Registry
	logger   types.Logger
}

// NewWebhookHandlers creates the handler set.
func NewWebhookHandlers(registry *webhooks.Registry, logger types.Logger) *WebhookHandlers {
	return &WebhookHandlers{registry: registry, logger: logger}
}

// Create handles POST /webhooks.
func (h *WebhookHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var input webhooks.CreateWebhookInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, h.logger, types.NewAppError(types.ErrCodeValidationInvalidField, "invalid request body", err))
		return
	}

	webhook, err := h.registry.Create(r.Context(), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, webhook)
}

// Get handles GET /webhooks/{id}.
func (h *WebhookHandlers) Get(w http.ResponseWriter, r *http.Request) {
	webhook, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, webhook)
}

// List handles GET /webhooks with filter, sort and pagination query
// parameters: name, is_active, event, sort, order, limit, offset.
func (h *WebhookHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := db.WebhookFilter{
		Name:  q.Get("name"),
		Event: types.OutcomeEventType(q.Get("event")),
	}
	if raw := q.Get("is_active"); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}

	sort := db.WebhookSort{
		Field:      q.Get("sort"),
		Descending: q.Get("order") == "desc",
	}
	page := db.WebhookPage{
		Limit:  intQuery(r, "limit", 50),
		Offset: intQuery(r, "offset", 0),
	}

	results, err := h.registry.Find(r.Context(), filter, sort, page)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if results == nil {
		results = []*types.Webhook{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": results})
}

// Update handles PATCH /webhooks/{id}.
func (h *WebhookHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var input webhooks.UpdateWebhookInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, h.logger, types.NewAppError(types.ErrCodeValidationInvalidField, "invalid request body", err))
		return
	}

	webhook, err := h.registry.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, webhook)
}

// Delete handles DELETE /webhooks/{id}.
func (h *WebhookHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAttempts handles GET /webhooks/{id}/attempts.
func (h *WebhookHandlers) ListAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.registry.ListAttempts(r.Context(), chi.URLParam(r, "id"), intQuery(r, "limit", 50))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if attempts == nil {
		attempts = []*types.DeliveryAttempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}
