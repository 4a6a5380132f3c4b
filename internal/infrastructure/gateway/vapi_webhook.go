package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/shopspring/decimal"
)

// WebhookSecretHeader is the header Vapi echoes the server secret in
const WebhookSecretHeader = "X-Vapi-Secret"

// vapiWebhookEnvelope is the raw webhook payload shape
type vapiWebhookEnvelope struct {
	Message struct {
		Type   string `json:"type"`
		Status string `json:"status"`
		Call   struct {
			ID string `json:"id"`
		} `json:"call"`
		EndedReason string `json:"endedReason"`
		Artifact    struct {
			Transcript   string `json:"transcript"`
			RecordingURL string `json:"recordingUrl"`
		} `json:"artifact"`
		Analysis struct {
			Summary string `json:"summary"`
		} `json:"analysis"`
		DurationSeconds float64 `json:"durationSeconds"`
		Cost            float64 `json:"cost"`
		Timestamp       int64   `json:"timestamp"`
	} `json:"message"`
}

// VerifyWebhookSecret checks the echoed server secret in constant time
func (a *VapiAdapter) VerifyWebhookSecret(got string) error {
	if a.config.WebhookSecret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.config.WebhookSecret)) != 1 {
		return collection.ErrEventSignatureInvalid
	}
	return nil
}

// ParseWebhook normalizes a raw Vapi webhook payload into a CallEvent.
// Payload shapes the pipeline does not care about (speech updates, transcripts
// mid-call) return ok=false and are acknowledged without processing.
func (a *VapiAdapter) ParseWebhook(body []byte) (collection.CallEvent, bool, error) {
	var envelope vapiWebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return collection.CallEvent{}, false, fmt.Errorf("vapi: malformed webhook payload: %w", err)
	}

	msg := envelope.Message
	if msg.Call.ID == "" {
		return collection.CallEvent{}, false, fmt.Errorf("vapi: webhook payload carries no call id")
	}

	event := collection.CallEvent{
		Handle:     collection.CallHandle(msg.Call.ID),
		OccurredAt: time.Now(),
	}
	if msg.Timestamp > 0 {
		event.OccurredAt = time.UnixMilli(msg.Timestamp)
	}

	switch msg.Type {
	case "status-update":
		if msg.Status != "in-progress" {
			return collection.CallEvent{}, false, nil
		}
		event.Type = collection.CallEventStarted
		return event, true, nil

	case "end-of-call-report":
		event.Type = classifyEndedReason(msg.EndedReason)
		event.Transcript = msg.Artifact.Transcript
		event.Summary = msg.Analysis.Summary
		event.RecordingURL = msg.Artifact.RecordingURL
		event.DurationSeconds = int(msg.DurationSeconds)
		event.Cost = decimal.NewFromFloat(msg.Cost)
		return event, true, nil
	}

	return collection.CallEvent{}, false, nil
}

// classifyEndedReason maps the provider's ended reason to an event type
func classifyEndedReason(reason string) collection.CallEventType {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "no-answer"), strings.Contains(r, "did-not-answer"),
		strings.Contains(r, "busy"), strings.Contains(r, "voicemail"):
		return collection.CallEventNoAnswer
	case strings.Contains(r, "error"), strings.Contains(r, "failed"),
		strings.Contains(r, "rejected"):
		return collection.CallEventFailed
	default:
		return collection.CallEventEnded
	}
}
