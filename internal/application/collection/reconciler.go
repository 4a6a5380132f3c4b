package collection

import (
	"context"
	"sync"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"go.uber.org/zap"
)

// LedgerReconciler queues outcome records whose ledger write failed even
// after retries, and replays them on a later pass. No outcome is silently
// lost: it either reaches the ledger or stays queued here.
type LedgerReconciler struct {
	mu    sync.Mutex
	queue []collection.OutcomeRecord

	ledger collection.Ledger
	retry  RetryPolicy
	logger *zap.Logger
}

// NewLedgerReconciler creates a reconciler writing through the given ledger
func NewLedgerReconciler(ledger collection.Ledger, retry RetryPolicy, logger *zap.Logger) *LedgerReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerReconciler{
		ledger: ledger,
		retry:  retry,
		logger: logger,
	}
}

// Enqueue parks a record whose write failed
func (r *LedgerReconciler) Enqueue(rec collection.OutcomeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, rec)
	r.logger.Warn("Queued outcome for ledger reconciliation",
		zap.String("invoice_ref", rec.InvoiceRef),
		zap.Int("queue_depth", len(r.queue)))
}

// Pending returns the number of queued records
func (r *LedgerReconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Run drains the queue once. Records that still fail go back to the queue.
// Returns how many records were written and how many remain.
func (r *LedgerReconciler) Run(ctx context.Context) (written, remaining int) {
	r.mu.Lock()
	pending := r.queue
	r.queue = nil
	r.mu.Unlock()

	if len(pending) == 0 {
		return 0, 0
	}

	var failed []collection.OutcomeRecord
	for _, rec := range pending {
		rec := rec
		err := r.retry.Do(ctx, func(ctx context.Context) error {
			return r.ledger.WriteOutcome(ctx, rec)
		})
		if err != nil {
			r.logger.Error("Ledger reconciliation write failed",
				zap.String("invoice_ref", rec.InvoiceRef),
				zap.Error(err))
			failed = append(failed, rec)
			continue
		}
		written++
	}

	r.mu.Lock()
	// New enqueues may have landed while we were writing
	r.queue = append(failed, r.queue...)
	remaining = len(r.queue)
	r.mu.Unlock()

	if written > 0 {
		r.logger.Info("Ledger reconciliation pass finished",
			zap.Int("written", written),
			zap.Int("remaining", remaining))
	}
	return written, remaining
}
