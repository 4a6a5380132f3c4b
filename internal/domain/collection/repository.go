package collection

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CallAttemptRepository persists call attempts. Needed for crash recovery:
// attempts already DISPATCHED or IN_PROGRESS must not be re-dispatched after
// a restart, and terminal attempts are retained for audit.
type CallAttemptRepository interface {
	// Save inserts or updates an attempt
	Save(ctx context.Context, attempt *CallAttempt) error
	// FindByID returns the attempt with the given ID, or ErrAttemptNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*CallAttempt, error)
	// FindByHandle returns the attempt holding the provider handle, or
	// ErrAttemptNotFound
	FindByHandle(ctx context.Context, handle CallHandle) (*CallAttempt, error)
	// FindNonTerminal returns every attempt not yet in a terminal state
	FindNonTerminal(ctx context.Context) ([]*CallAttempt, error)
	// CountForInvoice returns how many attempts exist for an invoice
	CountForInvoice(ctx context.Context, invoiceRef string) (int, error)
	// MaxAttemptNumber returns the highest attempt number recorded for an
	// invoice, zero when none exist
	MaxAttemptNumber(ctx context.Context, invoiceRef string) (int, error)
}

// DispatchLogStore persists the rolling dispatch-timestamp log so the rate
// limiter survives restarts. Best-effort: losing the log widens the budget
// for at most one minute.
type DispatchLogStore interface {
	// Append records a dispatch timestamp
	Append(ctx context.Context, t time.Time) error
	// Since returns the timestamps at or after cutoff, oldest first
	Since(ctx context.Context, cutoff time.Time) ([]time.Time, error)
}
