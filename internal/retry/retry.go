/**
 * Retry with exponential backoff and deadline wrapping
 *
 * Used by the orchestrator around every vision call: backoff wraps the raw
 * call, the timeout wraps the whole backoff loop, so the deadline bounds
 * total retry time rather than each attempt.
 */

package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/wakka810/web-ocr/internal/apperr"
)

// Config controls the backoff schedule
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultConfig matches the production retry policy for vision calls
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2000 * time.Millisecond,
		MaxDelay:    10000 * time.Millisecond,
		Multiplier:  2,
	}
}

// DelayFor returns the wait before re-attempting after the given attempt
// (1-based): min(BaseDelay * Multiplier^(attempt-1), MaxDelay).
func (c Config) DelayFor(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.Multiplier)
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Observer is notified before each backoff wait. attempt is the 1-based
// attempt that just failed.
type Observer func(attempt int, err error, delay time.Duration)

// Do executes op, retrying transient failures per cfg. Classification is
// delegated to apperr: an explicit Retryable flag on the error wins,
// otherwise transient-marker matching applies. The last error is
// propagated unchanged.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error), observer Observer) (T, error) {
	var zero T
	var lastErr error

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !apperr.IsRetryable(err) || attempt == cfg.MaxAttempts {
			return zero, lastErr
		}

		delay := cfg.DelayFor(attempt)
		if observer != nil {
			observer(attempt, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// WithTimeout races op against a timer. On expiry it returns a TIMEOUT
// error (retryable) and abandons the operation: its context is canceled so
// the retry loop inside stops waiting, and its eventual result is
// discarded.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}

	// Buffered so the abandoned goroutine can still complete and exit.
	done := make(chan outcome, 1)

	go func() {
		result, err := op(opCtx)
		done <- outcome{result: result, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.result, out.err
	case <-timer.C:
		return zero, apperr.Timeout(fmt.Sprintf("operation timed out after %v", timeout))
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
