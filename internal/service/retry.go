package service

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/logger"
	"github.com/timmy/sprintreport/internal/metrics"
)

// RetryPolicy bounds how upstream calls are retried.
// Only failures classified as domain.Transient are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CallTimeout    time.Duration // per attempt, 0 disables
}

// DefaultRetryPolicy returns 3 attempts, 2s doubling backoff capped at 30s
// and a 30s per-call timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		CallTimeout:    30 * time.Second,
	}
}

// Backoff returns the delay before the given retry (1 = first retry).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	d := p.InitialBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Retry runs fn under the policy.
// Parameters:
//   - ctx: parent context; cancellation stops retrying immediately.
//   - p: retry policy.
//   - source: upstream name for logs and metrics.
//   - op: operation name for logs and metrics.
//   - fn: the call; it receives a context bounded by CallTimeout.
//
// Returns:
//   - T: result of the first successful attempt.
//   - error: last failure, or the parent context error.
func Retry[T any](ctx context.Context, p RetryPolicy, source, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		result, err := callOnce(ctx, p.CallTimeout, source, op, fn)
		if err == nil {
			metrics.ObserveUpstreamCall(source, op, "ok", time.Since(start))
			return result, nil
		}
		lastErr = err

		transient := domain.IsTransient(err)
		outcome := "permanent"
		if transient {
			outcome = "transient"
		}
		metrics.ObserveUpstreamCall(source, op, outcome, time.Since(start))

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !transient || attempt == attempts {
			break
		}

		delay := p.Backoff(attempt)
		metrics.IncRetry(source, op)
		logger.With(logger.Fields{
			logger.FieldSource:     source,
			logger.FieldAttempt:    attempt,
			logger.FieldDurationMs: delay.Milliseconds(),
		}).Warn(ctx, "Upstream %s failed, retrying: %v", op, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// callOnce applies the per-call timeout and classifies a timeout of the
// attempt itself as transient.
func callOnce[T any](ctx context.Context, timeout time.Duration, source, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !domain.IsTransient(err) {
		err = domain.NewTransientError(source, op, 0, err)
	}
	return result, err
}
