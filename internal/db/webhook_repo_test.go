package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notifgate/internal/types"
)

func testWebhook() *types.Webhook {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &types.Webhook{
		ID:         "wh_1",
		Name:       "ops-alerts",
		URL:        "https://hooks.example.com/notify",
		Events:     []types.OutcomeEventType{types.OutcomeDelivered},
		Headers:    map[string]string{"X-Team": "ops"},
		Secret:     types.SecretString("whsec_abc"),
		IsActive:   true,
		Timeout:    10 * time.Second,
		RetryCount: 3,
		RetryDelay: 2 * time.Second,
		CreatedBy:  "admin-1",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestWebhookRepositoryCreate(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)

	dbtx.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "INSERT INTO webhooks")
	}), mock.MatchedBy(func(args []any) bool {
		// secret must be stored unmasked, not as the redacted placeholder
		return args[0] == "wh_1" && args[5] == "whsec_abc"
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(context.Background(), testWebhook())

	require.NoError(t, err)
	dbtx.AssertExpectations(t)
}

func TestWebhookRepositoryCreateNameConflict(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "webhooks_name_active_key"}
	dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, pgErr)

	err := repo.Create(context.Background(), testWebhook())

	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictWebhookName, appErr.Code)
	assert.Contains(t, appErr.Message, `"ops-alerts"`)
	assert.Equal(t, 409, appErr.HTTPStatus())
}

func TestWebhookRepositoryUpdateNotFound(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)

	dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Update(context.Background(), testWebhook())

	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundWebhook, appErr.Code)
}

func TestWebhookRepositoryDelete(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)

	dbtx.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "DELETE FROM webhooks")
	}), []any{"wh_1"}).Return(pgconn.NewCommandTag("DELETE 1"), nil)

	require.NoError(t, repo.Delete(context.Background(), "wh_1"))
	dbtx.AssertExpectations(t)
}

func webhookScanFn(w *types.Webhook) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = w.ID
		*dest[1].(*string) = w.Name
		*dest[2].(*string) = w.URL
		*dest[3].(*[]byte) = []byte(`["notification.delivered","notification.failed"]`)
		*dest[4].(*[]byte) = []byte(`{"X-Team":"ops"}`)
		*dest[5].(*string) = w.Secret.Unmask()
		*dest[6].(*bool) = w.IsActive
		*dest[7].(*int64) = w.Timeout.Milliseconds()
		*dest[8].(*int) = w.RetryCount
		*dest[9].(*int64) = w.RetryDelay.Milliseconds()
		*dest[10].(*string) = w.CreatedBy
		*dest[11].(*time.Time) = w.CreatedAt
		*dest[12].(*time.Time) = w.UpdatedAt
		return nil
	}
}

func TestWebhookRepositoryGetByID(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)
	want := testWebhook()

	dbtx.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "FROM webhooks") && strings.Contains(sql, "WHERE id = $1")
	}), []any{"wh_1"}).Return(&mockRow{scanFn: webhookScanFn(want)})

	got, err := repo.GetByID(context.Background(), "wh_1")

	require.NoError(t, err)
	assert.Equal(t, "wh_1", got.ID)
	assert.Equal(t, []types.OutcomeEventType{
		types.OutcomeDelivered,
		types.OutcomeFailed,
	}, got.Events)
	assert.Equal(t, map[string]string{"X-Team": "ops"}, got.Headers)
	assert.Equal(t, 10*time.Second, got.Timeout)
	assert.Equal(t, 2*time.Second, got.RetryDelay)
	// scanned secret stays masked when printed
	assert.Equal(t, "***REDACTED***", got.Secret.String())
	assert.Equal(t, "whsec_abc", got.Secret.Unmask())
}

func TestWebhookRepositoryGetByIDNotFound(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)

	dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error { return pgx.ErrNoRows }})

	_, err := repo.GetByID(context.Background(), "wh_missing")

	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundWebhook, appErr.Code)
	assert.Equal(t, 404, appErr.HTTPStatus())
}

func TestWebhookRepositoryFindBuildsFilterQuery(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)
	active := true

	var capturedSQL string
	var capturedArgs []any
	dbtx.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		capturedSQL = sql
		return true
	}), mock.MatchedBy(func(args []any) bool {
		capturedArgs = args
		return true
	})).Return(&mockRows{}, nil)

	_, err := repo.Find(context.Background(),
		WebhookFilter{Name: "ops-alerts", IsActive: &active, Event: types.OutcomeFailed},
		WebhookSort{Field: "name", Descending: true},
		WebhookPage{Limit: 10, Offset: 20},
	)

	require.NoError(t, err)
	assert.Contains(t, capturedSQL, "name = $1")
	assert.Contains(t, capturedSQL, "is_active = $2")
	assert.Contains(t, capturedSQL, "events ? $3")
	assert.Contains(t, capturedSQL, "ORDER BY name DESC")
	assert.Contains(t, capturedSQL, "LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{"ops-alerts", true, "notification.failed", 10, 20}, capturedArgs)
}

func TestWebhookRepositoryFindRejectsUnsafeSortField(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)

	dbtx.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ORDER BY created_at ASC") &&
			!strings.Contains(sql, "DROP")
	}), mock.Anything).Return(&mockRows{}, nil)

	_, err := repo.Find(context.Background(),
		WebhookFilter{},
		WebhookSort{Field: "name; DROP TABLE webhooks"},
		WebhookPage{},
	)

	require.NoError(t, err)
	dbtx.AssertExpectations(t)
}

func TestWebhookRepositoryFindCapsLimit(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)

	dbtx.On("Query", mock.Anything, mock.Anything, mock.MatchedBy(func(args []any) bool {
		return args[len(args)-2] == 50
	})).Return(&mockRows{}, nil)

	_, err := repo.Find(context.Background(), WebhookFilter{}, WebhookSort{}, WebhookPage{Limit: 5000})

	require.NoError(t, err)
	dbtx.AssertExpectations(t)
}

func TestWebhookRepositoryListActiveByEvent(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)
	want := testWebhook()

	dbtx.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "WHERE is_active AND events ? $1")
	}), []any{"notification.dead_lettered"}).
		Return(&mockRows{rows: []func(dest ...any) error{webhookScanFn(want)}}, nil)

	hooks, err := repo.ListActiveByEvent(context.Background(), types.OutcomeDeadLettered)

	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, "wh_1", hooks[0].ID)
}

func TestWebhookRepositoryListActiveByEventTransient(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)

	dbtx.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	_, err := repo.ListActiveByEvent(context.Background(), types.OutcomeDelivered)

	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeTransientStore, appErr.Code)
	assert.True(t, appErr.IsTransient())
}

func TestWebhookRepositoryRecordAttempt(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)
	sentAt := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)

	dbtx.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "INSERT INTO webhook_delivery_attempts")
	}), mock.MatchedBy(func(args []any) bool {
		return args[3] == "failed" && args[6] == "context deadline exceeded"
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.RecordAttempt(context.Background(), &types.DeliveryAttempt{
		ID:        "att_1",
		WebhookID: "wh_1",
		EventID:   "evt_1",
		Status:    types.DeliveryStatusFailed,
		Attempt:   2,
		SentAt:    &sentAt,
		Error:     "context deadline exceeded",
	})

	require.NoError(t, err)
	dbtx.AssertExpectations(t)
}

func TestWebhookRepositoryListAttempts(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewWebhookRepository(dbtx)
	sentAt := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)

	scan := func(dest ...any) error {
		*dest[0].(*string) = "att_1"
		*dest[1].(*string) = "wh_1"
		*dest[2].(*string) = "evt_1"
		*dest[3].(*string) = "success"
		*dest[4].(*int) = 1
		*dest[5].(**time.Time) = &sentAt
		*dest[6].(**string) = nil
		return nil
	}
	dbtx.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ORDER BY sent_at DESC NULLS LAST")
	}), []any{"wh_1", 50}).Return(&mockRows{rows: []func(dest ...any) error{scan}}, nil)

	attempts, err := repo.ListAttempts(context.Background(), "wh_1", 0)

	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, types.DeliveryStatusSuccess, attempts[0].Status)
	assert.Equal(t, 1, attempts[0].Attempt)
	require.NotNil(t, attempts[0].SentAt)
	assert.True(t, attempts[0].SentAt.Equal(sentAt))
	assert.Empty(t, attempts[0].Error)
}
