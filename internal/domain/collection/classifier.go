package collection

import "context"

// OutcomeClassifier is the port to the natural-language component that turns
// a call transcript into a structured Outcome. Implementations must return
// within a bounded timeout; the caller treats any error (including deadline
// expiry) as a classification failure and degrades to OutcomeTagUnclear.
type OutcomeClassifier interface {
	Classify(ctx context.Context, transcript, summary string) (Outcome, error)
}
