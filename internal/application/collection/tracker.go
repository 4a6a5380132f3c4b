package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"go.uber.org/zap"
)

// CallStateTracker is the authoritative registry of in-flight call attempts.
// All transitions go through it: per-handle check-and-set under a single
// mutex, so a webhook event and the watchdog sweep can never both win the
// same transition. Transitions are persisted through the repository so a
// restart does not re-dispatch attempts that are already on the wire.
type CallStateTracker struct {
	mu sync.Mutex
	// byHandle indexes non-terminal attempts by provider handle
	byHandle map[collection.CallHandle]*collection.CallAttempt
	// byInvoice indexes non-terminal attempts by invoice ref, enforcing the
	// at-most-one-in-flight invariant
	byInvoice map[string]*collection.CallAttempt

	repo   collection.CallAttemptRepository
	logger *zap.Logger
}

// TransitionResult reports what an applied gateway event did
type TransitionResult struct {
	Attempt *collection.CallAttempt
	// BecameTerminal is true when this event moved the attempt into a
	// terminal state (the caller owes a classification and a ledger write)
	BecameTerminal bool
	// AlreadyTerminal is true when the attempt was terminal before the event
	// arrived; the event is a duplicate or a late arrival and was dropped
	AlreadyTerminal bool
}

// NewCallStateTracker creates a tracker backed by the given repository
func NewCallStateTracker(repo collection.CallAttemptRepository, logger *zap.Logger) *CallStateTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallStateTracker{
		byHandle:  make(map[collection.CallHandle]*collection.CallAttempt),
		byInvoice: make(map[string]*collection.CallAttempt),
		repo:      repo,
		logger:    logger,
	}
}

// Recover reloads non-terminal attempts from the repository after a restart.
// Recovered attempts keep their state; DISPATCHED and IN_PROGRESS calls are
// still live on the provider side and must not be re-dispatched.
func (t *CallStateTracker) Recover(ctx context.Context) error {
	attempts, err := t.repo.FindNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("tracker: recovery load failed: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range attempts {
		t.byInvoice[a.InvoiceRef] = a
		if a.ProviderHandle != "" {
			t.byHandle[collection.CallHandle(a.ProviderHandle)] = a
		}
	}

	if len(attempts) > 0 {
		t.logger.Info("Recovered in-flight call attempts",
			zap.Int("count", len(attempts)))
	}
	return nil
}

// Register admits a new PENDING_DISPATCH attempt. Fails with
// ErrAttemptInFlight when the invoice already has a non-terminal attempt.
func (t *CallStateTracker) Register(ctx context.Context, attempt *collection.CallAttempt) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byInvoice[attempt.InvoiceRef]; ok && !existing.State.IsTerminal() {
		return collection.ErrAttemptInFlight
	}
	if err := t.repo.Save(ctx, attempt); err != nil {
		return fmt.Errorf("tracker: persist attempt: %w", err)
	}
	t.byInvoice[attempt.InvoiceRef] = attempt
	return nil
}

// MarkDispatched records a successful gateway placement and indexes the
// attempt by its provider handle
func (t *CallStateTracker) MarkDispatched(ctx context.Context, attempt *collection.CallAttempt, handle collection.CallHandle, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := attempt.MarkDispatched(handle.String(), at); err != nil {
		return err
	}
	t.byHandle[handle] = attempt
	if err := t.repo.Save(ctx, attempt); err != nil {
		return fmt.Errorf("tracker: persist dispatch: %w", err)
	}
	return nil
}

// MarkDispatchFailed closes a PENDING_DISPATCH attempt whose placement never
// succeeded
func (t *CallStateTracker) MarkDispatchFailed(ctx context.Context, attempt *collection.CallAttempt, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := attempt.MarkFailed(at); err != nil {
		return err
	}
	t.release(attempt)
	if err := t.repo.Save(ctx, attempt); err != nil {
		return fmt.Errorf("tracker: persist failure: %w", err)
	}
	return nil
}

// Apply routes a gateway event to its attempt and performs the atomic
// check-and-set transition. Duplicate and late events for a terminal attempt
// are dropped (AlreadyTerminal); an event the state machine cannot accept is
// rejected with ErrInvalidTransition; an unknown handle is rejected with
// ErrUnknownCallHandle. None of these abort the caller's loop.
func (t *CallStateTracker) Apply(ctx context.Context, event collection.CallEvent) (TransitionResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt, ok := t.byHandle[event.Handle]
	if !ok {
		// Fall back to the repository: the attempt may be terminal already
		// and evicted from the index
		stored, err := t.repo.FindByHandle(ctx, event.Handle)
		if err != nil {
			if errors.Is(err, collection.ErrAttemptNotFound) {
				return TransitionResult{}, collection.ErrUnknownCallHandle
			}
			return TransitionResult{}, fmt.Errorf("tracker: handle lookup: %w", err)
		}
		attempt = stored
	}

	if attempt.State.IsTerminal() {
		t.logger.Info("Dropping event for terminal attempt",
			zap.String("handle", event.Handle.String()),
			zap.String("event_type", string(event.Type)),
			zap.String("state", attempt.State.String()))
		return TransitionResult{Attempt: attempt, AlreadyTerminal: true}, nil
	}

	var err error
	switch event.Type {
	case collection.CallEventStarted:
		err = attempt.MarkInProgress(event.OccurredAt)
	case collection.CallEventEnded:
		err = attempt.Complete(event.Transcript, event.Summary, event.OccurredAt)
	case collection.CallEventNoAnswer:
		err = attempt.MarkNoAnswer(event.OccurredAt)
	case collection.CallEventFailed:
		err = attempt.MarkFailed(event.OccurredAt)
	default:
		return TransitionResult{Attempt: attempt}, fmt.Errorf("tracker: unsupported event type %q", event.Type)
	}
	if err != nil {
		return TransitionResult{Attempt: attempt}, err
	}

	if event.Type.IsTerminal() {
		attempt.DurationSeconds = event.DurationSeconds
		attempt.RecordingURL = event.RecordingURL
		if !event.Cost.IsZero() {
			attempt.Cost = event.Cost
		}
		t.release(attempt)
	}

	if err := t.repo.Save(ctx, attempt); err != nil {
		return TransitionResult{Attempt: attempt}, fmt.Errorf("tracker: persist transition: %w", err)
	}

	return TransitionResult{
		Attempt:        attempt,
		BecameTerminal: attempt.State.IsTerminal(),
	}, nil
}

// Finalize attaches the classified outcome to a terminal attempt and persists
// it. needsReview flags the attempt for manual follow-up.
func (t *CallStateTracker) Finalize(ctx context.Context, attempt *collection.CallAttempt, outcome collection.Outcome, needsReview bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt.AttachOutcome(outcome)
	if needsReview {
		attempt.FlagForReview()
	}
	if err := t.repo.Save(ctx, attempt); err != nil {
		return fmt.Errorf("tracker: persist outcome: %w", err)
	}
	return nil
}

// SweepTimeouts force-closes attempts that have been running longer than the
// deadline. Returns the attempts it moved to TIMED_OUT. A terminal event
// racing the sweep wins: the check-and-set happens under the same mutex that
// Apply holds.
func (t *CallStateTracker) SweepTimeouts(ctx context.Context, now time.Time, deadline time.Duration) []*collection.CallAttempt {
	t.mu.Lock()
	defer t.mu.Unlock()

	var swept []*collection.CallAttempt
	for _, attempt := range t.byInvoice {
		if attempt.State.IsTerminal() {
			continue
		}
		if attempt.Elapsed(now) <= deadline {
			continue
		}
		if err := attempt.MarkTimedOut(now); err != nil {
			// A terminal event slipped in between the checks; it wins
			continue
		}
		t.release(attempt)
		if err := t.repo.Save(ctx, attempt); err != nil {
			t.logger.Error("Failed to persist timed out attempt",
				zap.String("attempt_id", attempt.ID.String()),
				zap.Error(err))
		}
		t.logger.Warn("Call attempt timed out",
			zap.String("attempt_id", attempt.ID.String()),
			zap.String("invoice_ref", attempt.InvoiceRef),
			zap.Duration("elapsed", attempt.Elapsed(now)))
		swept = append(swept, attempt)
	}
	return swept
}

// ActiveAttempt returns the non-terminal attempt for an invoice, if any
func (t *CallStateTracker) ActiveAttempt(invoiceRef string) (*collection.CallAttempt, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempt, ok := t.byInvoice[invoiceRef]
	if !ok || attempt.State.IsTerminal() {
		return nil, false
	}
	return attempt, true
}

// ActiveCount returns the number of non-terminal attempts
func (t *CallStateTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, a := range t.byInvoice {
		if !a.State.IsTerminal() {
			n++
		}
	}
	return n
}

// release drops a terminal attempt from the in-flight indexes. Caller holds mu.
func (t *CallStateTracker) release(attempt *collection.CallAttempt) {
	if current, ok := t.byInvoice[attempt.InvoiceRef]; ok && current.ID == attempt.ID {
		delete(t.byInvoice, attempt.InvoiceRef)
	}
	if attempt.ProviderHandle != "" {
		delete(t.byHandle, collection.CallHandle(attempt.ProviderHandle))
	}
}
