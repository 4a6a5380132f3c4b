package collection

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CallState represents the lifecycle state of a CallAttempt
type CallState string

const (
	// CallStatePendingDispatch indicates the attempt is created but not yet placed
	CallStatePendingDispatch CallState = "PENDING_DISPATCH"
	// CallStateDispatched indicates the gateway accepted the placement request
	CallStateDispatched CallState = "DISPATCHED"
	// CallStateInProgress indicates the provider reported the call as started
	CallStateInProgress CallState = "IN_PROGRESS"
	// CallStateCompleted indicates the call ended and was answered (terminal)
	CallStateCompleted CallState = "COMPLETED"
	// CallStateNoAnswer indicates the customer did not pick up (terminal)
	CallStateNoAnswer CallState = "NO_ANSWER"
	// CallStateFailed indicates the placement or the call itself failed (terminal)
	CallStateFailed CallState = "FAILED"
	// CallStateTimedOut indicates no terminal event arrived within the allowed
	// duration and the watchdog forced the attempt closed (terminal)
	CallStateTimedOut CallState = "TIMED_OUT"
)

// IsValid checks if the state is a valid CallState
func (s CallState) IsValid() bool {
	switch s {
	case CallStatePendingDispatch, CallStateDispatched, CallStateInProgress,
		CallStateCompleted, CallStateNoAnswer, CallStateFailed, CallStateTimedOut:
		return true
	}
	return false
}

// String returns the string representation of CallState
func (s CallState) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition may leave this state
func (s CallState) IsTerminal() bool {
	switch s {
	case CallStateCompleted, CallStateNoAnswer, CallStateFailed, CallStateTimedOut:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. Transitions are monotonic: a terminal state accepts nothing,
// and no state accepts a move backwards. COMPLETED is reachable directly from
// DISPATCHED because provider webhooks for the same handle are not guaranteed
// to arrive in order (an "ended" report can overtake the "started" update).
func (s CallState) CanTransitionTo(next CallState) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case CallStatePendingDispatch:
		return next == CallStateDispatched || next == CallStateFailed || next == CallStateTimedOut
	case CallStateDispatched:
		return next == CallStateInProgress || next == CallStateCompleted ||
			next == CallStateNoAnswer || next == CallStateFailed || next == CallStateTimedOut
	case CallStateInProgress:
		return next == CallStateCompleted || next == CallStateNoAnswer ||
			next == CallStateFailed || next == CallStateTimedOut
	}
	return false
}

// CallAttempt is one dispatched reminder call for a given invoice and retry
// count. It is created by the orchestrator, mutated only by the state tracker
// in response to gateway events, and retained for audit once terminal.
type CallAttempt struct {
	ID            uuid.UUID
	InvoiceRef    string
	ClientRef     string
	AttemptNumber int
	State         CallState

	// ProviderHandle is the gateway's call identifier; empty until dispatched
	ProviderHandle string

	StartedAt *time.Time
	EndedAt   *time.Time

	// Call content attached on the terminal event
	Transcript      string
	Summary         string
	RecordingURL    string
	DurationSeconds int
	Cost            decimal.Decimal

	// Outcome is the classified result; nil until the attempt is terminal
	Outcome *Outcome
	// NeedsReview flags the attempt for manual follow-up when classification
	// degraded to UNCLEAR
	NeedsReview bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCallAttempt creates a new attempt in PENDING_DISPATCH
func NewCallAttempt(invoiceRef, clientRef string, attemptNumber int) *CallAttempt {
	now := time.Now()
	return &CallAttempt{
		ID:            uuid.New(),
		InvoiceRef:    invoiceRef,
		ClientRef:     clientRef,
		AttemptNumber: attemptNumber,
		State:         CallStatePendingDispatch,
		Cost:          decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// transition applies a guarded state change
func (a *CallAttempt) transition(next CallState) error {
	if !a.State.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	a.State = next
	a.UpdatedAt = time.Now()
	return nil
}

// MarkDispatched records a successful gateway placement and the provider handle
func (a *CallAttempt) MarkDispatched(handle string, at time.Time) error {
	if err := a.transition(CallStateDispatched); err != nil {
		return err
	}
	a.ProviderHandle = handle
	a.StartedAt = &at
	return nil
}

// MarkInProgress records the first "call started" event from the gateway
func (a *CallAttempt) MarkInProgress(at time.Time) error {
	if err := a.transition(CallStateInProgress); err != nil {
		return err
	}
	if a.StartedAt == nil {
		a.StartedAt = &at
	}
	return nil
}

// Complete records an answered call ending and attaches the transcript
func (a *CallAttempt) Complete(transcript, summary string, at time.Time) error {
	if err := a.transition(CallStateCompleted); err != nil {
		return err
	}
	a.Transcript = transcript
	a.Summary = summary
	a.EndedAt = &at
	return nil
}

// MarkNoAnswer records an explicit no-answer event from the gateway
func (a *CallAttempt) MarkNoAnswer(at time.Time) error {
	if err := a.transition(CallStateNoAnswer); err != nil {
		return err
	}
	a.EndedAt = &at
	return nil
}

// MarkFailed records a placement or provider failure
func (a *CallAttempt) MarkFailed(at time.Time) error {
	if err := a.transition(CallStateFailed); err != nil {
		return err
	}
	a.EndedAt = &at
	return nil
}

// MarkTimedOut force-closes an attempt whose terminal event never arrived
func (a *CallAttempt) MarkTimedOut(at time.Time) error {
	if err := a.transition(CallStateTimedOut); err != nil {
		return err
	}
	a.EndedAt = &at
	return nil
}

// AttachOutcome attaches the classified result. Outcomes are immutable once
// produced; a second attach is ignored.
func (a *CallAttempt) AttachOutcome(o Outcome) {
	if a.Outcome != nil {
		return
	}
	a.Outcome = &o
	a.UpdatedAt = time.Now()
}

// FlagForReview marks the attempt for manual follow-up
func (a *CallAttempt) FlagForReview() {
	a.NeedsReview = true
	a.UpdatedAt = time.Now()
}

// Elapsed returns how long the attempt has been running since dispatch.
// An attempt that never left PENDING_DISPATCH has no StartedAt; it is
// measured from creation instead so the watchdog can still close it (a crash
// between persisting the attempt and completing placement would otherwise
// leave the invoice blocked forever).
func (a *CallAttempt) Elapsed(now time.Time) time.Duration {
	if a.StartedAt != nil {
		return now.Sub(*a.StartedAt)
	}
	return now.Sub(a.CreatedAt)
}
