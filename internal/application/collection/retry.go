package collection

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds retries of a transient operation with exponential
// backoff. Used for gateway placements and ledger writes; both sit on
// external services that fail transiently.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultGatewayRetryPolicy is tuned short: a placement that cannot be
// accepted quickly should fail over to a later cycle instead of holding a
// worker.
func DefaultGatewayRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
}

// DefaultLedgerRetryPolicy allows a longer tail because outcome writes must
// not be lost lightly
func DefaultLedgerRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 15 * time.Second}
}

// permanentError marks an error that further retries cannot fix
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Do stops retrying and returns it immediately.
// Used for failures like rejected credentials where repeating the call only
// burns the budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it succeeds, the attempts are exhausted, or the context is
// done. Returns the last error when all attempts fail.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := p.BaseDelay
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		if err := op(ctx); err != nil {
			var pe *permanentError
			if errors.As(err, &pe) {
				return pe.err
			}
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
