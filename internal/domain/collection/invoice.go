package collection

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the payment status of an invoice in the ledger
type PaymentStatus string

const (
	// PaymentStatusPending indicates the invoice is unpaid and eligible for calls
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusOverdue indicates the invoice is unpaid and past its due date
	PaymentStatusOverdue PaymentStatus = "OVERDUE"
	// PaymentStatusPaid indicates the customer has settled the invoice
	PaymentStatusPaid PaymentStatus = "PAID"
	// PaymentStatusCalled indicates a reminder call completed and a follow-up is recorded
	PaymentStatusCalled PaymentStatus = "CALLED"
	// PaymentStatusFailed indicates all reminder attempts were exhausted without contact
	PaymentStatusFailed PaymentStatus = "FAILED"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusOverdue, PaymentStatusPaid,
		PaymentStatusCalled, PaymentStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsCallable returns true if invoices in this status may receive reminder calls
func (s PaymentStatus) IsCallable() bool {
	return s == PaymentStatusPending || s == PaymentStatusOverdue
}

// Invoice is an immutable snapshot of a ledger invoice taken at the start of
// an orchestration cycle. The ledger remains the source of truth; the core
// never mutates an Invoice, it only writes outcome records back through the
// Ledger port.
type Invoice struct {
	// Ref is the ledger-side invoice identifier (e.g. "INV-2024-001")
	Ref string
	// ClientRef identifies the client the invoice belongs to
	ClientRef string
	// AmountDue is the outstanding amount
	AmountDue decimal.Decimal
	// Currency is the ISO currency code for AmountDue
	Currency string
	// DueDate is the invoice due date
	DueDate time.Time
	// Status is the payment status at snapshot time
	Status PaymentStatus
}

// Overdue returns true if the invoice is unpaid past its due date at now
func (i Invoice) Overdue(now time.Time) bool {
	return i.Status.IsCallable() && now.After(i.DueDate)
}
