package dto

import (
	"time"

	orchestration "github.com/azeebneuron/PaymentReminderCallerAgent/internal/application/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
)

// CallAttemptResponse represents one reminder call attempt
type CallAttemptResponse struct {
	ID            string `json:"id"`
	InvoiceRef    string `json:"invoice_ref"`
	ClientRef     string `json:"client_ref"`
	AttemptNumber int    `json:"attempt_number"`
	State         string `json:"state"`

	ProviderHandle string     `json:"provider_handle,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`

	Transcript      string `json:"transcript,omitempty"`
	Summary         string `json:"summary,omitempty"`
	RecordingURL    string `json:"recording_url,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Cost            string `json:"cost,omitempty"`

	Outcome     *OutcomeResponse `json:"outcome,omitempty"`
	NeedsReview bool             `json:"needs_review"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OutcomeResponse represents a classified call outcome
type OutcomeResponse struct {
	Tag                 string  `json:"tag"`
	Note                string  `json:"note,omitempty"`
	Confidence          float64 `json:"confidence,omitempty"`
	PromisedPaymentDate string  `json:"promised_payment_date,omitempty"`
	NextFollowUpDate    string  `json:"next_follow_up_date,omitempty"`
	NeedsInvoiceResend  bool    `json:"needs_invoice_resend,omitempty"`
	DisputeReason       string  `json:"dispute_reason,omitempty"`
	DetectedLanguage    string  `json:"detected_language,omitempty"`
	CustomerSentiment   string  `json:"customer_sentiment,omitempty"`
}

// FromCallAttempt converts a domain call attempt to its API representation
func FromCallAttempt(attempt *collection.CallAttempt) CallAttemptResponse {
	resp := CallAttemptResponse{
		ID:              attempt.ID.String(),
		InvoiceRef:      attempt.InvoiceRef,
		ClientRef:       attempt.ClientRef,
		AttemptNumber:   attempt.AttemptNumber,
		State:           attempt.State.String(),
		ProviderHandle:  attempt.ProviderHandle,
		StartedAt:       attempt.StartedAt,
		EndedAt:         attempt.EndedAt,
		Transcript:      attempt.Transcript,
		Summary:         attempt.Summary,
		RecordingURL:    attempt.RecordingURL,
		DurationSeconds: attempt.DurationSeconds,
		NeedsReview:     attempt.NeedsReview,
		CreatedAt:       attempt.CreatedAt,
		UpdatedAt:       attempt.UpdatedAt,
	}
	if !attempt.Cost.IsZero() {
		resp.Cost = attempt.Cost.String()
	}
	if attempt.Outcome != nil {
		resp.Outcome = fromOutcome(*attempt.Outcome)
	}
	return resp
}

func fromOutcome(o collection.Outcome) *OutcomeResponse {
	resp := &OutcomeResponse{
		Tag:                o.Tag.String(),
		Note:               o.Note,
		Confidence:         o.Confidence,
		NeedsInvoiceResend: o.NeedsInvoiceResend,
		DisputeReason:      o.DisputeReason,
		DetectedLanguage:   o.DetectedLanguage,
		CustomerSentiment:  string(o.CustomerSentiment),
	}
	if o.PromisedPaymentDate != nil {
		resp.PromisedPaymentDate = o.PromisedPaymentDate.Format("2006-01-02")
	}
	if o.NextFollowUpDate != nil {
		resp.NextFollowUpDate = o.NextFollowUpDate.Format("2006-01-02")
	}
	return resp
}

// CycleSummaryResponse represents the result of one dispatch cycle
type CycleSummaryResponse struct {
	StartedAt        time.Time      `json:"started_at"`
	DurationMs       int64          `json:"duration_ms"`
	Clients          int            `json:"clients"`
	Candidates       int            `json:"candidates"`
	Dispatched       int            `json:"dispatched"`
	Skipped          int            `json:"skipped"`
	SkipReasons      map[string]int `json:"skip_reasons,omitempty"`
	Deferred         int            `json:"deferred"`
	DispatchFailures int            `json:"dispatch_failures"`
	FetchFailures    int            `json:"fetch_failures"`
}

// FromCycleSummary converts a cycle summary to its API representation
func FromCycleSummary(s orchestration.CycleSummary) CycleSummaryResponse {
	resp := CycleSummaryResponse{
		StartedAt:        s.StartedAt,
		DurationMs:       s.Duration.Milliseconds(),
		Clients:          s.Clients,
		Candidates:       s.Candidates,
		Dispatched:       s.Dispatched,
		Skipped:          s.Skipped,
		Deferred:         s.Deferred,
		DispatchFailures: s.DispatchFailures,
		FetchFailures:    s.FetchFailures,
	}
	if len(s.SkipReasons) > 0 {
		resp.SkipReasons = make(map[string]int, len(s.SkipReasons))
		for reason, count := range s.SkipReasons {
			resp.SkipReasons[string(reason)] = count
		}
	}
	return resp
}

// ReconcileResponse represents the result of a reconciliation pass
type ReconcileResponse struct {
	Written   int `json:"written"`
	Remaining int `json:"remaining"`
}
