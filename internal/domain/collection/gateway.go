package collection

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CallHandle is the provider's opaque identifier for a placed call
type CallHandle string

// String returns the string representation of CallHandle
func (h CallHandle) String() string {
	return string(h)
}

// CallEventType identifies what a gateway webhook event reports
type CallEventType string

const (
	// CallEventStarted means the call began ringing / was answered by the line
	CallEventStarted CallEventType = "started"
	// CallEventEnded means the call ended after being answered; carries a transcript
	CallEventEnded CallEventType = "ended"
	// CallEventFailed means the provider could not complete the call
	CallEventFailed CallEventType = "failed"
	// CallEventNoAnswer means the customer never picked up
	CallEventNoAnswer CallEventType = "no-answer"
)

// IsValid checks if the event type is valid
func (t CallEventType) IsValid() bool {
	switch t {
	case CallEventStarted, CallEventEnded, CallEventFailed, CallEventNoAnswer:
		return true
	}
	return false
}

// IsTerminal returns true if the event closes the call
func (t CallEventType) IsTerminal() bool {
	return t == CallEventEnded || t == CallEventFailed || t == CallEventNoAnswer
}

// CallEvent is a normalized gateway webhook event. Delivery is at-least-once
// and unordered; the state tracker's idempotent transitions absorb duplicates
// and out-of-order arrivals.
type CallEvent struct {
	Handle CallHandle
	Type   CallEventType

	// Transcript and Summary are present on ended events
	Transcript string
	Summary    string

	DurationSeconds int
	RecordingURL    string
	Cost            decimal.Decimal

	OccurredAt time.Time
}

// PlaceCallRequest carries everything the gateway needs to script and place
// one reminder call
type PlaceCallRequest struct {
	Client  Client
	Invoice Invoice
	// AttemptNumber lets the script acknowledge earlier calls
	AttemptNumber int
	// MaxDuration is the provider-enforced ceiling for the call
	MaxDuration time.Duration
	// CallbackURL is where the provider should deliver webhook events
	CallbackURL string
}

// CallGateway is the port to the external voice-call provider. Implemented
// per provider in the infrastructure layer.
type CallGateway interface {
	// PlaceCall requests an outbound call and returns the provider handle.
	// Transient failures (network, 5xx, provider rate limit) are returned
	// as-is for the caller's retry policy to absorb.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (CallHandle, error)
}
