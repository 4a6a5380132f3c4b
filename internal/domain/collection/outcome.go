package collection

import "time"

// OutcomeTag classifies what the customer said on a completed call
type OutcomeTag string

const (
	// OutcomeTagPromiseToPay indicates the customer committed to paying
	OutcomeTagPromiseToPay OutcomeTag = "PROMISE_TO_PAY"
	// OutcomeTagDispute indicates the customer disputed the invoice
	OutcomeTagDispute OutcomeTag = "DISPUTE"
	// OutcomeTagNoAnswer indicates the call connected but nobody engaged
	OutcomeTagNoAnswer OutcomeTag = "NO_ANSWER"
	// OutcomeTagWrongNumber indicates the number does not reach the client
	OutcomeTagWrongNumber OutcomeTag = "WRONG_NUMBER"
	// OutcomeTagPaidAlready indicates the customer says payment was made
	OutcomeTagPaidAlready OutcomeTag = "PAID_ALREADY"
	// OutcomeTagUnclear indicates classification failed or was inconclusive;
	// the attempt is flagged for manual review
	OutcomeTagUnclear OutcomeTag = "UNCLEAR"
)

// IsValid checks if the tag is a valid OutcomeTag
func (t OutcomeTag) IsValid() bool {
	switch t {
	case OutcomeTagPromiseToPay, OutcomeTagDispute, OutcomeTagNoAnswer,
		OutcomeTagWrongNumber, OutcomeTagPaidAlready, OutcomeTagUnclear:
		return true
	}
	return false
}

// String returns the string representation of OutcomeTag
func (t OutcomeTag) String() string {
	return string(t)
}

// Sentiment is the classifier's read of the customer's mood
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentAngry    Sentiment = "angry"
)

// Outcome is the structured result the classifier extracts from a call
// transcript. Produced once per terminal CallAttempt; immutable afterwards.
type Outcome struct {
	Tag OutcomeTag
	// Note is the free-form extraction the classifier produced
	Note string
	// Confidence is the classifier's self-reported confidence in [0,1]
	Confidence float64

	// PromisedPaymentDate is set when the customer named a payment date
	PromisedPaymentDate *time.Time
	// NextFollowUpDate is when the account team should chase again
	NextFollowUpDate *time.Time
	// NeedsInvoiceResend is set when the customer asked for the invoice again
	NeedsInvoiceResend bool
	// DisputeReason carries the customer's stated reason when Tag is DISPUTE
	DisputeReason string
	// DetectedLanguage is the language the customer spoke
	DetectedLanguage string
	// CustomerSentiment is the classifier's sentiment read
	CustomerSentiment Sentiment
}

// UnclearOutcome builds the degraded outcome used when classification fails.
// The note records why so the manual reviewer has something to go on.
func UnclearOutcome(note string) Outcome {
	return Outcome{
		Tag:               OutcomeTagUnclear,
		Note:              note,
		CustomerSentiment: SentimentNeutral,
	}
}

// InvoiceStatusFor maps a classified outcome to the invoice status written
// back to the ledger. retriesLeft applies to the non-contact tags: with
// retries remaining the invoice stays PENDING for a later attempt, otherwise
// it is marked FAILED.
func (o Outcome) InvoiceStatusFor(retriesLeft bool) PaymentStatus {
	switch o.Tag {
	case OutcomeTagPaidAlready:
		return PaymentStatusPaid
	case OutcomeTagPromiseToPay, OutcomeTagDispute, OutcomeTagUnclear:
		return PaymentStatusCalled
	case OutcomeTagNoAnswer, OutcomeTagWrongNumber:
		if retriesLeft {
			return PaymentStatusPending
		}
		return PaymentStatusFailed
	}
	return PaymentStatusCalled
}
