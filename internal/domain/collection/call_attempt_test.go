package collection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallStateTransitions(t *testing.T) {
	t.Run("terminal states accept nothing", func(t *testing.T) {
		for _, terminal := range []CallState{CallStateCompleted, CallStateNoAnswer, CallStateFailed, CallStateTimedOut} {
			for _, next := range []CallState{CallStatePendingDispatch, CallStateDispatched, CallStateInProgress, CallStateCompleted} {
				assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
			}
		}
	})

	t.Run("no transition back to an earlier state", func(t *testing.T) {
		assert.False(t, CallStateDispatched.CanTransitionTo(CallStatePendingDispatch))
		assert.False(t, CallStateInProgress.CanTransitionTo(CallStateDispatched))
		assert.False(t, CallStateInProgress.CanTransitionTo(CallStatePendingDispatch))
	})

	t.Run("ended may overtake started", func(t *testing.T) {
		// same-handle webhook ordering is not guaranteed
		assert.True(t, CallStateDispatched.CanTransitionTo(CallStateCompleted))
	})

	t.Run("any non-terminal state can time out", func(t *testing.T) {
		for _, s := range []CallState{CallStatePendingDispatch, CallStateDispatched, CallStateInProgress} {
			assert.True(t, s.CanTransitionTo(CallStateTimedOut), s)
		}
	})
}

func TestCallAttemptLifecycle(t *testing.T) {
	now := time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)

	t.Run("happy path dispatch to completed", func(t *testing.T) {
		a := NewCallAttempt("INV-001", "CL-001", 1)
		assert.Equal(t, CallStatePendingDispatch, a.State)

		require.NoError(t, a.MarkDispatched("vapi-123", now))
		assert.Equal(t, CallStateDispatched, a.State)
		assert.Equal(t, "vapi-123", a.ProviderHandle)
		require.NotNil(t, a.StartedAt)

		require.NoError(t, a.MarkInProgress(now.Add(5*time.Second)))
		assert.Equal(t, CallStateInProgress, a.State)

		require.NoError(t, a.Complete("transcript text", "customer will pay", now.Add(2*time.Minute)))
		assert.Equal(t, CallStateCompleted, a.State)
		assert.Equal(t, "transcript text", a.Transcript)
		require.NotNil(t, a.EndedAt)
	})

	t.Run("duplicate terminal event is rejected", func(t *testing.T) {
		a := NewCallAttempt("INV-001", "CL-001", 1)
		require.NoError(t, a.MarkDispatched("vapi-123", now))
		require.NoError(t, a.Complete("transcript", "", now.Add(time.Minute)))

		err := a.Complete("other transcript", "", now.Add(2*time.Minute))
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, "transcript", a.Transcript, "first terminal event wins")
	})

	t.Run("late ended event after timeout is rejected", func(t *testing.T) {
		a := NewCallAttempt("INV-002", "CL-001", 1)
		require.NoError(t, a.MarkDispatched("vapi-456", now))
		require.NoError(t, a.MarkInProgress(now.Add(time.Second)))
		require.NoError(t, a.MarkTimedOut(now.Add(10*time.Minute)))

		err := a.Complete("too late", "", now.Add(11*time.Minute))
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, CallStateTimedOut, a.State)
	})

	t.Run("in progress preserves dispatch start time", func(t *testing.T) {
		a := NewCallAttempt("INV-003", "CL-001", 1)
		require.NoError(t, a.MarkDispatched("vapi-789", now))
		require.NoError(t, a.MarkInProgress(now.Add(30*time.Second)))
		assert.Equal(t, now, *a.StartedAt)
	})

	t.Run("outcome attaches once", func(t *testing.T) {
		a := NewCallAttempt("INV-004", "CL-001", 1)
		a.AttachOutcome(Outcome{Tag: OutcomeTagPromiseToPay})
		a.AttachOutcome(Outcome{Tag: OutcomeTagDispute})
		assert.Equal(t, OutcomeTagPromiseToPay, a.Outcome.Tag)
	})

	t.Run("elapsed measures from dispatch", func(t *testing.T) {
		a := NewCallAttempt("INV-005", "CL-001", 1)
		require.NoError(t, a.MarkDispatched("vapi-xyz", now))
		assert.Equal(t, 3*time.Minute, a.Elapsed(now.Add(3*time.Minute)))
	})

	t.Run("elapsed falls back to creation before dispatch", func(t *testing.T) {
		a := NewCallAttempt("INV-006", "CL-001", 1)
		a.CreatedAt = now.Add(-10 * time.Minute)
		assert.Equal(t, 10*time.Minute, a.Elapsed(now))
	})
}

func TestOutcomeInvoiceStatusFor(t *testing.T) {
	cases := []struct {
		tag         OutcomeTag
		retriesLeft bool
		want        PaymentStatus
	}{
		{OutcomeTagPaidAlready, true, PaymentStatusPaid},
		{OutcomeTagPromiseToPay, true, PaymentStatusCalled},
		{OutcomeTagDispute, false, PaymentStatusCalled},
		{OutcomeTagUnclear, false, PaymentStatusCalled},
		{OutcomeTagNoAnswer, true, PaymentStatusPending},
		{OutcomeTagNoAnswer, false, PaymentStatusFailed},
		{OutcomeTagWrongNumber, false, PaymentStatusFailed},
	}
	for _, tc := range cases {
		got := Outcome{Tag: tc.tag}.InvoiceStatusFor(tc.retriesLeft)
		assert.Equal(t, tc.want, got, "%s retriesLeft=%v", tc.tag, tc.retriesLeft)
	}
}
