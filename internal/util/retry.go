package util

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// MaxRetryDelay caps the backoff between attempts.
const MaxRetryDelay = 30 * time.Second

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry stops at once and returns
// the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, or
// maxAttempts calls have failed, in which case the last error is returned.
// The wait starts at baseDelay and doubles after every failure up to
// MaxRetryDelay. Cancelling ctx ends the wait with ctx.Err().
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	maxAttempts = max(maxAttempts, 1)
	delay := baseDelay

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= maxAttempts {
			return err
		}

		slog.Debug("retrying", "attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, MaxRetryDelay)
	}
}
