package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifgate/internal/retry"
	"notifgate/internal/types"
)

type fakeProvider struct {
	failures   int // fail this many calls before succeeding
	calls      int
	deliveryID string
	lastReq    *types.NotificationRequest
}

func (p *fakeProvider) Send(ctx context.Context, req *types.NotificationRequest) (string, error) {
	p.calls++
	p.lastReq = req
	if p.calls <= p.failures {
		return "", errors.New("provider unavailable")
	}
	return p.deliveryID, nil
}

type recordingSink struct {
	records []*types.DeadLetterRecord
}

func (s *recordingSink) Insert(ctx context.Context, rec *types.DeadLetterRecord) error {
	s.records = append(s.records, rec)
	return nil
}

type recordingEmitter struct {
	events []types.OutcomeEvent
}

func (e *recordingEmitter) Emit(ctx context.Context, event types.OutcomeEvent) {
	e.events = append(e.events, event)
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestWorker(t *testing.T, store *fakeStore, provider Provider, sink DeadLetterSink, emitter OutcomeEmitter, maxAttempts int) *Worker {
	t.Helper()
	q := NewDispatchQueue(store, nopLogger{})
	executor := retry.NewExecutorWithSleep(nopLogger{}, noSleep)
	w := NewWorker(q, provider, sink, emitter, executor, WorkerConfig{
		BatchSize:    10,
		PollInterval: time.Millisecond,
		Policy:       retry.Policy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond},
	}, nopLogger{})
	w.SetClock(fixedClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	return w
}

func TestWorkerDeliversAndMarksDone(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{deliveryID: "del_1"}
	emitter := &recordingEmitter{}
	sink := &recordingSink{}
	w := newTestWorker(t, store, provider, sink, emitter, 3)

	item, err := w.queue.Enqueue(context.Background(), testRequest(types.PriorityUrgent, "corr-1"))
	require.NoError(t, err)

	n, err := w.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, types.QueueStatusDone, store.items[item.ID].Status)
	assert.Empty(t, sink.records)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, types.OutcomeDelivered, emitter.events[0].Type)
	assert.Equal(t, "corr-1", emitter.events[0].CorrelationID)
	assert.Equal(t, "del_1", emitter.events[0].Data["delivery_id"])
}

func TestWorkerRetriesTransientFailure(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{failures: 2, deliveryID: "del_1"}
	emitter := &recordingEmitter{}
	w := newTestWorker(t, store, provider, &recordingSink{}, emitter, 3)

	item, err := w.queue.Enqueue(context.Background(), testRequest(types.PriorityNormal, "corr-1"))
	require.NoError(t, err)

	_, err = w.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, types.QueueStatusDone, store.items[item.ID].Status)
	assert.Equal(t, 3, store.items[item.ID].AttemptCount)
	require.Len(t, emitter.events, 1)
	assert.Equal(t, types.OutcomeDelivered, emitter.events[0].Type)
}

func TestWorkerExhaustionMarksDeadAndDeadLetters(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{failures: 100}
	emitter := &recordingEmitter{}
	sink := &recordingSink{}
	w := newTestWorker(t, store, provider, sink, emitter, 3)

	item, err := w.queue.Enqueue(context.Background(), testRequest(types.PriorityHigh, "corr-dead"))
	require.NoError(t, err)

	_, err = w.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, types.QueueStatusDead, store.items[item.ID].Status)

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, types.DeadLetterRetriesExhausted, rec.Reason)
	assert.Equal(t, "corr-dead", rec.CorrelationID)
	assert.Contains(t, rec.Detail, "3 attempts")
	assert.Contains(t, string(rec.OriginalMessage), `"corr-dead"`)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, types.OutcomeFailed, emitter.events[0].Type)
	assert.Equal(t, 3, emitter.events[0].Data["attempts"])
}

func TestWorkerProcessesBatchInPriorityOrder(t *testing.T) {
	store := newFakeStore()
	provider := &orderRecordingProvider{}
	w := newTestWorker(t, store, provider, &recordingSink{}, nil, 1)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	enqueueAt := func(priority types.PriorityTier, offset time.Duration, corr string) {
		w.queue.SetClock(fixedClock{at: base.Add(offset)})
		_, err := w.queue.Enqueue(context.Background(), testRequest(priority, corr))
		require.NoError(t, err)
	}
	enqueueAt(types.PriorityLow, time.Second, "corr-low")
	enqueueAt(types.PriorityUrgent, 2*time.Second, "corr-urgent-late")
	enqueueAt(types.PriorityUrgent, 0, "corr-urgent-early")

	n, err := w.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"corr-urgent-early", "corr-urgent-late", "corr-low"}, provider.order)
}

func TestWorkerNilEmitterIsSafe(t *testing.T) {
	store := newFakeStore()
	w := newTestWorker(t, store, &fakeProvider{deliveryID: "del_1"}, &recordingSink{}, nil, 1)

	_, err := w.queue.Enqueue(context.Background(), testRequest(types.PriorityNormal, "corr-1"))
	require.NoError(t, err)

	_, err = w.ProcessBatch(context.Background())
	require.NoError(t, err)
}

type orderRecordingProvider struct {
	order []string
}

func (p *orderRecordingProvider) Send(ctx context.Context, req *types.NotificationRequest) (string, error) {
	p.order = append(p.order, req.CorrelationID)
	return "del", nil
}
