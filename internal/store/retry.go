// ABOUTME: Bounded retry policy wrapping every entity operation
// ABOUTME: Fixed attempt count with a fixed delay between attempts, no deadlines

package store

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy bounds how often an operation is re-attempted against
// the connection manager. Delays are fixed, not exponential: the tier
// fallback above this layer is the escalation path.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy matches the tuning the storage service expects.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: 100 * time.Millisecond}

// run executes fn up to p.Attempts times, sleeping p.Delay between
// attempts. Non-retryable errors (missing entities, cancelled
// contexts, unusable backend) return immediately.
func (p RetryPolicy) run(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			logger.Debug("retrying operation", "op", op, "attempt", i+1, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

// retryable reports whether another attempt could plausibly succeed.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, ErrBackendUnavailable):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case IsConstraintViolation(err):
		return false
	}
	return true
}
