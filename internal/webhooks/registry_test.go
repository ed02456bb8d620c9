package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifgate/internal/db"
	"notifgate/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) With(args ...any) types.Logger { return nopLogger{} }

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

// fakeWebhookStore keeps webhooks in memory, enforcing the active-name
// uniqueness rule the way the Postgres partial index does.
type fakeWebhookStore struct {
	webhooks map[string]*types.Webhook
	attempts map[string][]*types.DeliveryAttempt
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{
		webhooks: make(map[string]*types.Webhook),
		attempts: make(map[string][]*types.DeliveryAttempt),
	}
}

func (s *fakeWebhookStore) nameConflict(name, excludeID string) bool {
	for id, w := range s.webhooks {
		if id != excludeID && w.IsActive && w.Name == name {
			return true
		}
	}
	return false
}

func (s *fakeWebhookStore) Create(ctx context.Context, w *types.Webhook) error {
	if w.IsActive && s.nameConflict(w.Name, w.ID) {
		return types.NewAppError(types.ErrCodeConflictWebhookName, "an active webhook named "+w.Name+" already exists", nil)
	}
	copied := *w
	s.webhooks[w.ID] = &copied
	return nil
}

func (s *fakeWebhookStore) Update(ctx context.Context, w *types.Webhook) error {
	if _, ok := s.webhooks[w.ID]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundWebhook, "webhook not found", nil)
	}
	if w.IsActive && s.nameConflict(w.Name, w.ID) {
		return types.NewAppError(types.ErrCodeConflictWebhookName, "an active webhook named "+w.Name+" already exists", nil)
	}
	copied := *w
	s.webhooks[w.ID] = &copied
	return nil
}

func (s *fakeWebhookStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.webhooks[id]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundWebhook, "webhook not found", nil)
	}
	delete(s.webhooks, id)
	return nil
}

func (s *fakeWebhookStore) GetByID(ctx context.Context, id string) (*types.Webhook, error) {
	w, ok := s.webhooks[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundWebhook, "webhook not found", nil)
	}
	copied := *w
	return &copied, nil
}

func (s *fakeWebhookStore) Find(ctx context.Context, filter db.WebhookFilter, sort db.WebhookSort, page db.WebhookPage) ([]*types.Webhook, error) {
	var out []*types.Webhook
	for _, w := range s.webhooks {
		if filter.Name != "" && w.Name != filter.Name {
			continue
		}
		if filter.IsActive != nil && w.IsActive != *filter.IsActive {
			continue
		}
		copied := *w
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeWebhookStore) ListAttempts(ctx context.Context, webhookID string, limit int) ([]*types.DeliveryAttempt, error) {
	return s.attempts[webhookID], nil
}

func validInput() CreateWebhookInput {
	return CreateWebhookInput{
		Name:      "ops-alerts",
		URL:       "https://hooks.example.com/notify",
		Events:    []types.OutcomeEventType{types.OutcomeDelivered, types.OutcomeFailed},
		Secret:    "whsec_abc",
		CreatedBy: "admin-1",
	}
}

func newTestRegistry(store Store) *Registry {
	r := NewRegistry(store, nopLogger{})
	r.SetClock(fixedClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	return r
}

func TestRegistryCreate(t *testing.T) {
	store := newFakeWebhookStore()
	r := newTestRegistry(store)

	w, err := r.Create(context.Background(), validInput())

	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.True(t, w.IsActive)
	assert.Equal(t, 10*time.Second, w.Timeout)
	assert.Equal(t, 2*time.Second, w.RetryDelay)
	assert.Equal(t, "whsec_abc", w.Secret.Unmask())
	assert.Len(t, store.webhooks, 1)
}

func TestRegistryCreateRejectsInvalidURL(t *testing.T) {
	r := newTestRegistry(newFakeWebhookStore())

	for _, badURL := range []string{"", "not-a-url", "ftp://example.com/x", "http://"} {
		input := validInput()
		input.URL = badURL

		_, err := r.Create(context.Background(), input)

		require.Error(t, err, "url %q", badURL)
		var appErr *types.AppError
		if errors.As(err, &appErr) && badURL != "" {
			assert.Equal(t, types.ErrCodeValidationInvalidURL, appErr.Code, "url %q", badURL)
		}
	}
}

func TestRegistryCreateRejectsUnknownEvents(t *testing.T) {
	r := newTestRegistry(newFakeWebhookStore())

	input := validInput()
	input.Events = []types.OutcomeEventType{"notification.vanished"}

	_, err := r.Create(context.Background(), input)

	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidEvents, appErr.Code)
	assert.Contains(t, appErr.Message, "notification.vanished")
}

func TestRegistryCreateRejectsEmptyEvents(t *testing.T) {
	r := newTestRegistry(newFakeWebhookStore())

	input := validInput()
	input.Events = nil

	_, err := r.Create(context.Background(), input)

	require.Error(t, err)
}

func TestRegistryNameConflictAndReuseAfterDelete(t *testing.T) {
	store := newFakeWebhookStore()
	r := newTestRegistry(store)

	first, err := r.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = r.Create(context.Background(), validInput())
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictWebhookName, appErr.Code)

	// deleting the original frees the name
	require.NoError(t, r.Delete(context.Background(), first.ID))
	_, err = r.Create(context.Background(), validInput())
	require.NoError(t, err)
}

func TestRegistryUpdatePartialFields(t *testing.T) {
	store := newFakeWebhookStore()
	r := newTestRegistry(store)

	w, err := r.Create(context.Background(), validInput())
	require.NoError(t, err)

	newName := "ops-alerts-v2"
	inactive := false
	retries := 7
	updated, err := r.Update(context.Background(), w.ID, UpdateWebhookInput{
		Name:       &newName,
		IsActive:   &inactive,
		RetryCount: &retries,
	})

	require.NoError(t, err)
	assert.Equal(t, "ops-alerts-v2", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 7, updated.RetryCount)
	// untouched fields keep their values
	assert.Equal(t, w.URL, updated.URL)
	assert.Equal(t, w.Events, updated.Events)
}

func TestRegistryUpdateRenameConflict(t *testing.T) {
	store := newFakeWebhookStore()
	r := newTestRegistry(store)

	_, err := r.Create(context.Background(), validInput())
	require.NoError(t, err)

	other := validInput()
	other.Name = "billing-alerts"
	second, err := r.Create(context.Background(), other)
	require.NoError(t, err)

	taken := "ops-alerts"
	_, err = r.Update(context.Background(), second.ID, UpdateWebhookInput{Name: &taken})

	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictWebhookName, appErr.Code)
}

func TestRegistryUpdateRejectsInvalidURL(t *testing.T) {
	store := newFakeWebhookStore()
	r := newTestRegistry(store)

	w, err := r.Create(context.Background(), validInput())
	require.NoError(t, err)

	bad := "nonsense"
	_, err = r.Update(context.Background(), w.ID, UpdateWebhookInput{URL: &bad})

	require.Error(t, err)
}

func TestRegistryUpdateMissingWebhook(t *testing.T) {
	r := newTestRegistry(newFakeWebhookStore())

	name := "x"
	_, err := r.Update(context.Background(), "missing", UpdateWebhookInput{Name: &name})

	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundWebhook, appErr.Code)
}

func TestRegistryListAttemptsRequiresWebhook(t *testing.T) {
	r := newTestRegistry(newFakeWebhookStore())

	_, err := r.ListAttempts(context.Background(), "missing", 10)

	require.Error(t, err)
}
