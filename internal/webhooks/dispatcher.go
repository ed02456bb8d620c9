package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"notifgate/internal/retry"
	"notifgate/internal/types"
)

// AttemptRecorder persists one immutable record per delivery attempt.
// Implemented by db.WebhookRepository.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a *types.DeliveryAttempt) error
}

// Dispatcher delivers outcome events to subscriber URLs. Each delivery
// runs under the webhook's own retry budget via the shared retry executor,
// with the webhook's timeout bounding every attempt. Outbound calls go
// through a per-webhook circuit breaker so one broken subscriber cannot
// consume the retry budget of the rest.
type Dispatcher struct {
	recorder AttemptRecorder
	client   *http.Client
	executor *retry.Executor
	signer   *Signer
	clock    types.Clock
	logger   types.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[int]
}

// NewDispatcher creates a Dispatcher. The http client's own timeout is
// left unset; per-attempt timeouts come from each webhook's configuration.
func NewDispatcher(recorder AttemptRecorder, client *http.Client, executor *retry.Executor, logger types.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		recorder: recorder,
		client:   client,
		executor: executor,
		signer:   NewSigner(),
		clock:    types.RealClock{},
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[int]),
	}
}

// SetClock replaces the dispatcher's clock. Intended for tests.
func (d *Dispatcher) SetClock(c types.Clock) {
	d.clock = c
}

// Deliver posts one outcome event to a webhook. It returns the final
// delivery attempt record; a non-nil error means delivery ultimately
// failed (budget exhausted or a non-retryable response). Every attempt,
// success or failure, produces one immutable DeliveryAttempt record.
func (d *Dispatcher) Deliver(ctx context.Context, webhook *types.Webhook, event types.OutcomeEvent) (*types.DeliveryAttempt, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode outcome event", err)
	}

	policy := d.policyFor(webhook)
	logger := d.logger.With("webhook_id", webhook.ID, "webhook_name", webhook.Name, "event_id", event.ID)

	var (
		attemptNo int
		last      *types.DeliveryAttempt
		permanent error
	)

	result := d.executor.Execute(ctx, "webhook delivery", policy, func(attemptCtx context.Context) error {
		attemptNo++
		status, callErr := d.post(attemptCtx, webhook, body)

		attempt := d.newAttempt(webhook, event, attemptNo)
		switch {
		case callErr == nil && status >= 200 && status < 300:
			attempt.Status = types.DeliveryStatusSuccess
		case callErr == nil && !retryableStatus(status):
			attempt.Status = types.DeliveryStatusFailed
			attempt.Error = fmt.Sprintf("subscriber returned %d", status)
			permanent = fmt.Errorf("non-retryable response %d", status)
		case attemptNo >= policy.MaxAttempts:
			attempt.Status = types.DeliveryStatusFailed
			attempt.Error = attemptError(status, callErr)
		default:
			attempt.Status = types.DeliveryStatusRetrying
			attempt.Error = attemptError(status, callErr)
		}

		d.record(ctx, attempt, logger)
		last = attempt

		if attempt.Status == types.DeliveryStatusSuccess || permanent != nil {
			return nil
		}
		return fmt.Errorf("delivery attempt %d failed: %s", attemptNo, attempt.Error)
	})

	switch {
	case permanent != nil:
		logger.Warn("webhook delivery rejected by subscriber", "error", permanent.Error())
		return last, types.NewAppError(types.ErrCodeTransientWebhook, "webhook delivery failed", permanent)
	case !result.Success:
		logger.Error("webhook delivery exhausted", "attempts", result.Attempts, "error", result.Err.Error())
		return last, types.NewAppError(types.ErrCodeTransientWebhook, "webhook delivery failed", result.Err)
	default:
		logger.Info("webhook delivered", "attempts", result.Attempts)
		return last, nil
	}
}

func (d *Dispatcher) policyFor(webhook *types.Webhook) retry.Policy {
	policy := retry.DefaultPolicy
	if webhook.RetryCount > 0 {
		policy.MaxAttempts = webhook.RetryCount
	}
	if webhook.RetryDelay > 0 {
		policy.BaseDelay = webhook.RetryDelay
	}
	policy.AttemptTimeout = webhook.Timeout
	return policy
}

func (d *Dispatcher) newAttempt(webhook *types.Webhook, event types.OutcomeEvent, attemptNo int) *types.DeliveryAttempt {
	sentAt := d.clock.Now()
	return &types.DeliveryAttempt{
		ID:        uuid.NewString(),
		WebhookID: webhook.ID,
		EventID:   event.ID,
		Attempt:   attemptNo,
		SentAt:    &sentAt,
	}
}

func (d *Dispatcher) record(ctx context.Context, attempt *types.DeliveryAttempt, logger types.Logger) {
	if err := d.recorder.RecordAttempt(ctx, attempt); err != nil {
		logger.Error("failed to record delivery attempt",
			"attempt", attempt.Attempt,
			"error", err.Error(),
		)
	}
}

// post sends one signed HTTP request and returns the response status code.
func (d *Dispatcher) post(ctx context.Context, webhook *types.Webhook, body []byte) (int, error) {
	breaker := d.breakerFor(webhook.ID)

	return breaker.Execute(func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range webhook.Headers {
			req.Header.Set(k, v)
		}
		if secret := webhook.Secret.Unmask(); secret != "" {
			req.Header.Set(SignatureHeader, d.signer.Sign(body, secret, d.clock.Now()))
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		// 5xx and 429 count as breaker failures.
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return resp.StatusCode, fmt.Errorf("subscriber returned %d", resp.StatusCode)
		}
		return resp.StatusCode, nil
	})
}

func (d *Dispatcher) breakerFor(webhookID string) *gobreaker.CircuitBreaker[int] {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[webhookID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "webhook-" + webhookID,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	d.breakers[webhookID] = cb
	return cb
}

// retryableStatus reports whether a response status is worth retrying:
// rate limiting and server-side failures are; other 4xx are not.
func retryableStatus(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

func attemptError(status int, callErr error) string {
	if callErr != nil {
		return callErr.Error()
	}
	return fmt.Sprintf("subscriber returned %d", status)
}
