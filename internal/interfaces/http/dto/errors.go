package dto

import (
	"errors"
	"net/http"

	orchestration "github.com/azeebneuron/PaymentReminderCallerAgent/internal/application/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
)

// Error code constants
// Format: ERR_<CATEGORY>_<DESCRIPTION>

const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeUnauthorized is used when a webhook fails secret verification
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"

	// ErrCodeCycleInProgress is used when a dispatch cycle is already running
	ErrCodeCycleInProgress = "ERR_CYCLE_IN_PROGRESS"
	// ErrCodeRetriesExhausted is used when an invoice's retry budget is spent
	ErrCodeRetriesExhausted = "ERR_RETRIES_EXHAUSTED"
	// ErrCodeAttemptInFlight is used when a call is already running for an invoice
	ErrCodeAttemptInFlight = "ERR_ATTEMPT_IN_FLIGHT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:     http.StatusInternalServerError,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeNotFound:     http.StatusNotFound,
	ErrCodeUnauthorized: http.StatusUnauthorized,

	ErrCodeCycleInProgress:  http.StatusConflict,
	ErrCodeRetriesExhausted: http.StatusUnprocessableEntity,
	ErrCodeAttemptInFlight:  http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeForError maps domain and orchestration errors to an API error code
func CodeForError(err error) string {
	switch {
	case errors.Is(err, orchestration.ErrCycleInProgress):
		return ErrCodeCycleInProgress
	case errors.Is(err, collection.ErrRetriesExhausted):
		return ErrCodeRetriesExhausted
	case errors.Is(err, collection.ErrAttemptInFlight):
		return ErrCodeAttemptInFlight
	case errors.Is(err, collection.ErrAttemptNotFound),
		errors.Is(err, collection.ErrInvoiceNotFound),
		errors.Is(err, collection.ErrUnknownCallHandle):
		return ErrCodeNotFound
	case errors.Is(err, collection.ErrEventSignatureInvalid):
		return ErrCodeUnauthorized
	default:
		return ErrCodeInternal
	}
}
