package models

import (
	"time"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CallAttemptModel persists one reminder call attempt. The classified outcome
// is flattened into nullable columns; OutcomeTag empty means no outcome yet.
type CallAttemptModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	InvoiceRef    string    `gorm:"size:64;not null;index"`
	ClientRef     string    `gorm:"size:64;not null;index"`
	AttemptNumber int       `gorm:"not null"`
	State         string    `gorm:"size:32;not null;index"`

	ProviderHandle string `gorm:"size:128;index"`

	StartedAt *time.Time
	EndedAt   *time.Time

	Transcript      string          `gorm:"type:text"`
	Summary         string          `gorm:"type:text"`
	RecordingURL    string          `gorm:"size:512"`
	DurationSeconds int             `gorm:"not null;default:0"`
	Cost            decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`

	OutcomeTag          string `gorm:"size:32;index"`
	OutcomeNote         string `gorm:"type:text"`
	OutcomeConfidence   float64
	PromisedPaymentDate *time.Time
	NextFollowUpDate    *time.Time
	NeedsInvoiceResend  bool   `gorm:"not null;default:false"`
	DisputeReason       string `gorm:"size:512"`
	DetectedLanguage    string `gorm:"size:16"`
	CustomerSentiment   string `gorm:"size:16"`

	NeedsReview bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for CallAttemptModel
func (CallAttemptModel) TableName() string {
	return "call_attempts"
}

// ToDomain converts the model to a domain CallAttempt
func (m *CallAttemptModel) ToDomain() *collection.CallAttempt {
	attempt := &collection.CallAttempt{
		ID:              m.ID,
		InvoiceRef:      m.InvoiceRef,
		ClientRef:       m.ClientRef,
		AttemptNumber:   m.AttemptNumber,
		State:           collection.CallState(m.State),
		ProviderHandle:  m.ProviderHandle,
		StartedAt:       m.StartedAt,
		EndedAt:         m.EndedAt,
		Transcript:      m.Transcript,
		Summary:         m.Summary,
		RecordingURL:    m.RecordingURL,
		DurationSeconds: m.DurationSeconds,
		Cost:            m.Cost,
		NeedsReview:     m.NeedsReview,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.OutcomeTag != "" {
		attempt.Outcome = &collection.Outcome{
			Tag:                 collection.OutcomeTag(m.OutcomeTag),
			Note:                m.OutcomeNote,
			Confidence:          m.OutcomeConfidence,
			PromisedPaymentDate: m.PromisedPaymentDate,
			NextFollowUpDate:    m.NextFollowUpDate,
			NeedsInvoiceResend:  m.NeedsInvoiceResend,
			DisputeReason:       m.DisputeReason,
			DetectedLanguage:    m.DetectedLanguage,
			CustomerSentiment:   collection.Sentiment(m.CustomerSentiment),
		}
	}
	return attempt
}

// FromDomain populates the model from a domain CallAttempt
func (m *CallAttemptModel) FromDomain(a *collection.CallAttempt) {
	m.ID = a.ID
	m.InvoiceRef = a.InvoiceRef
	m.ClientRef = a.ClientRef
	m.AttemptNumber = a.AttemptNumber
	m.State = a.State.String()
	m.ProviderHandle = a.ProviderHandle
	m.StartedAt = a.StartedAt
	m.EndedAt = a.EndedAt
	m.Transcript = a.Transcript
	m.Summary = a.Summary
	m.RecordingURL = a.RecordingURL
	m.DurationSeconds = a.DurationSeconds
	m.Cost = a.Cost
	m.NeedsReview = a.NeedsReview
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
	if a.Outcome != nil {
		m.OutcomeTag = a.Outcome.Tag.String()
		m.OutcomeNote = a.Outcome.Note
		m.OutcomeConfidence = a.Outcome.Confidence
		m.PromisedPaymentDate = a.Outcome.PromisedPaymentDate
		m.NextFollowUpDate = a.Outcome.NextFollowUpDate
		m.NeedsInvoiceResend = a.Outcome.NeedsInvoiceResend
		m.DisputeReason = a.Outcome.DisputeReason
		m.DetectedLanguage = a.Outcome.DetectedLanguage
		m.CustomerSentiment = string(a.Outcome.CustomerSentiment)
	}
}
