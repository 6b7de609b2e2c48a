// Package retry runs an operation with bounded attempts and exponential backoff.
// It performs no I/O of its own; what counts as retryable is decided by the caller.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAttemptsExhausted wraps the last error once every attempt has failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

type Policy struct {
	// MaxAttempts counts the initial attempt.
	MaxAttempts int
	// BaseDelay is the wait after the first failure; the wait after attempt i
	// (0-based) is BaseDelay * 2^i.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
	// IsRetryable gates further attempts. Nil retries every error.
	IsRetryable func(error) bool
	// Sleep waits between attempts. Nil uses a timer that honours ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Backoff returns the wait after the given 0-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d < p.BaseDelay {
		// shift overflowed
		d = p.MaxDelay
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Sleep == nil {
		p.Sleep = sleep
	}
	return p
}

// Do runs op until it succeeds, returns a non-retryable error, or runs out of
// attempts. A non-retryable error is returned as-is; exhaustion wraps the last
// error with ErrAttemptsExhausted.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return zero, err
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Backoff(attempt)
		slog.Debug("retrying after failure", "attempt", attempt+1, "max_attempts", p.MaxAttempts, "delay", delay, "error", err)
		if err := p.Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry interrupted after %d attempts: %w", attempt+1, errors.Join(err, lastErr))
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, p.MaxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
