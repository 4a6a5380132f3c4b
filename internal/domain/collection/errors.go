package collection

import "errors"

var (
	// ErrUnknownCallHandle is returned when a gateway event references a call
	// handle that the tracker has never seen. The event is reported and dropped.
	ErrUnknownCallHandle = errors.New("call: unknown call handle")
	// ErrInvalidTransition is returned when a gateway event would move an
	// attempt backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("call: invalid state transition")
	// ErrAttemptInFlight is returned when a dispatch is requested for an
	// invoice that already has a non-terminal attempt.
	ErrAttemptInFlight = errors.New("call: attempt already in flight for invoice")
	// ErrRetriesExhausted is returned when a retry is requested past the
	// configured maximum attempt count.
	ErrRetriesExhausted = errors.New("call: retry attempts exhausted")
	// ErrAttemptNotFound is returned when an attempt lookup misses.
	ErrAttemptNotFound = errors.New("call: attempt not found")

	// ErrDispatchFailed wraps transient gateway placement failures after the
	// bounded retry budget is spent.
	ErrDispatchFailed = errors.New("gateway: call placement failed")
	// ErrGatewayRateLimited indicates the provider rejected the placement with
	// a rate-limit response. Transient.
	ErrGatewayRateLimited = errors.New("gateway: provider rate limited")
	// ErrGatewayUnauthorized indicates rejected credentials. Not retryable.
	ErrGatewayUnauthorized = errors.New("gateway: authentication failed")
	// ErrEventSignatureInvalid indicates a webhook that failed secret
	// verification.
	ErrEventSignatureInvalid = errors.New("gateway: event signature verification failed")

	// ErrClassificationFailed indicates the classifier could not produce a
	// structured outcome within its budget. Degrades to OutcomeTagUnclear.
	ErrClassificationFailed = errors.New("classifier: classification failed")

	// ErrLedgerWriteFailed wraps ledger write failures after the bounded retry
	// budget is spent. Writes carrying this error are queued for reconciliation.
	ErrLedgerWriteFailed = errors.New("ledger: outcome write failed")
	// ErrInvoiceNotFound is returned when the ledger cannot locate the invoice
	// row referenced by an outcome write.
	ErrInvoiceNotFound = errors.New("ledger: invoice not found")
)
