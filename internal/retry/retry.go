// Package retry provides the generic bounded-attempt executor shared by the
// message consumer (queue enqueue) and the webhook dispatcher. Both call
// sites use the same executor with different policy values; the policy
// object selects fixed versus exponential backoff via BackoffFactor.
package retry

import (
	"context"
	"errors"
	"time"

	"notifgate/internal/types"
)

// ErrNoHandler signals that an operation found no handler interested in the
// work. Absence of a handler is not a transient fault: the executor
// short-circuits it as success-with-no-op rather than retrying.
var ErrNoHandler = errors.New("retry: no handler registered for operation")

// Policy defines the attempt budget and backoff parameters for an execution.
// BackoffFactor 1.0 yields a fixed delay between attempts; >1.0 yields
// exponential backoff capped at MaxDelay.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	AttemptTimeout time.Duration // 0 means no per-attempt timeout
}

// DefaultPolicy is the design-default budget: three attempts with a fixed
// one-second delay.
var DefaultPolicy = Policy{
	MaxAttempts:   3,
	BaseDelay:     1 * time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 1.0,
}

// Result reports the outcome of an execution. On exhaustion Success is false
// and Err holds the last attempt's error; the caller is responsible for
// routing the work to the dead-letter sink.
type Result struct {
	Success  bool
	Attempts int
	Err      error
}

// Executor runs operations under a retry policy. The sleep function is
// injectable so tests run without real delays.
type Executor struct {
	logger types.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor that logs attempt outcomes through the
// given logger.
func NewExecutor(logger types.Logger) *Executor {
	return &Executor{
		logger: logger,
		sleep:  sleepContext,
	}
}

// NewExecutorWithSleep creates an Executor with a caller-supplied sleep
// function. Intended for tests.
func NewExecutorWithSleep(logger types.Logger, sleep func(ctx context.Context, d time.Duration) error) *Executor {
	return &Executor{logger: logger, sleep: sleep}
}

// Execute runs op up to policy.MaxAttempts times, sleeping between failed
// attempts per the policy's backoff. Each attempt is isolated: no state is
// shared between attempts besides the counter. The label names the operation
// in logs.
//
// An op returning ErrNoHandler short-circuits immediately as a successful
// no-op. A canceled context stops further attempts and reports the last
// error (or the context error on the first attempt).
func (e *Executor) Execute(ctx context.Context, label string, policy Policy, op func(ctx context.Context) error) Result {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultPolicy.BaseDelay
	}
	if policy.BackoffFactor < 1.0 {
		policy.BackoffFactor = 1.0
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return Result{Success: false, Attempts: attempt - 1, Err: lastErr}
		}

		err := e.runAttempt(ctx, policy, op)
		if err == nil {
			return Result{Success: true, Attempts: attempt}
		}
		if errors.Is(err, ErrNoHandler) {
			// Logical no-op, not a fault.
			e.logger.Info("operation has no handler, skipping",
				"label", label,
				"attempt", attempt,
			)
			return Result{Success: true, Attempts: attempt}
		}

		lastErr = err
		e.logger.Warn("operation attempt failed",
			"label", label,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"error", err.Error(),
		)

		if attempt < policy.MaxAttempts {
			if sleepErr := e.sleep(ctx, NextDelay(policy, attempt-1)); sleepErr != nil {
				return Result{Success: false, Attempts: attempt, Err: lastErr}
			}
		}
	}

	e.logger.Error("operation retries exhausted",
		"label", label,
		"attempts", policy.MaxAttempts,
		"error", lastErr.Error(),
	)

	return Result{Success: false, Attempts: policy.MaxAttempts, Err: lastErr}
}

// runAttempt executes a single attempt, applying the per-attempt timeout
// when the policy carries one. Exceeding the timeout counts as a failed
// attempt.
func (e *Executor) runAttempt(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	if policy.AttemptTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
	defer cancel()
	return op(attemptCtx)
}

// NextDelay computes the delay before the next attempt:
// delay = min(BaseDelay * BackoffFactor^attempt, MaxDelay), attempt zero-based.
func NextDelay(policy Policy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}

	d := time.Duration(delay)
	if policy.MaxDelay > 0 && d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	if d < 0 {
		// Guard against overflow
		d = policy.MaxDelay
	}

	return d
}

// sleepContext sleeps for d or until the context is canceled, whichever
// comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
