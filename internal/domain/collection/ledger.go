package collection

import (
	"context"
	"time"
)

// OutcomeRecord is the write-back unit for the ledger: one terminal call
// attempt's result applied to its invoice row.
type OutcomeRecord struct {
	InvoiceRef string
	ClientRef  string
	// SheetID routes the write to the client's ledger sheet
	SheetID string

	Status  PaymentStatus
	Outcome Outcome
	// SummaryLine is the human-readable one-liner shown in the ledger
	SummaryLine string

	CallMadeAt   time.Time
	RecordingURL string
	NeedsReview  bool
}

// Ledger is the port to the external source of truth for invoices. The core
// reads pending invoices from it and writes classified outcomes back.
// Implementations must tolerate transient unavailability; the orchestrator
// wraps both operations in a bounded retry and queues failed writes for
// reconciliation.
type Ledger interface {
	// FetchPending returns the callable invoices for a client, with the
	// client contact details resolved
	FetchPending(ctx context.Context, client Client) ([]Invoice, error)

	// WriteOutcome applies a terminal attempt's result to the invoice row.
	// Returns ErrInvoiceNotFound when the row has disappeared from the sheet.
	WriteOutcome(ctx context.Context, rec OutcomeRecord) error
}

// ClientDirectory lists the clients a dispatch cycle should cover. Backed by
// the ledger's client registry.
type ClientDirectory interface {
	ListClients(ctx context.Context) ([]Client, error)
}
