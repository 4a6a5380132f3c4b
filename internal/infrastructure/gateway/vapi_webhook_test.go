package gateway

import (
	"testing"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookAdapter(t *testing.T) *VapiAdapter {
	t.Helper()
	adapter, err := NewVapiAdapter(testVapiConfig("https://api.vapi.ai"), nil)
	require.NoError(t, err)
	return adapter
}

func TestVerifyWebhookSecret(t *testing.T) {
	adapter := newWebhookAdapter(t)

	t.Run("accepts the configured secret", func(t *testing.T) {
		assert.NoError(t, adapter.VerifyWebhookSecret("hook-secret"))
	})

	t.Run("rejects a wrong secret", func(t *testing.T) {
		err := adapter.VerifyWebhookSecret("forged")
		assert.ErrorIs(t, err, collection.ErrEventSignatureInvalid)
	})

	t.Run("accepts anything when no secret is configured", func(t *testing.T) {
		cfg := testVapiConfig("https://api.vapi.ai")
		cfg.WebhookSecret = ""
		open, err := NewVapiAdapter(cfg, nil)
		require.NoError(t, err)
		assert.NoError(t, open.VerifyWebhookSecret("whatever"))
	})
}

func TestParseWebhook(t *testing.T) {
	adapter := newWebhookAdapter(t)

	t.Run("in-progress status update becomes a started event", func(t *testing.T) {
		body := []byte(`{"message":{"type":"status-update","status":"in-progress","call":{"id":"call-1"}}}`)
		event, ok, err := adapter.ParseWebhook(body)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, collection.CallEventStarted, event.Type)
		assert.Equal(t, collection.CallHandle("call-1"), event.Handle)
	})

	t.Run("end-of-call report becomes an ended event with transcript", func(t *testing.T) {
		body := []byte(`{"message":{
			"type":"end-of-call-report",
			"call":{"id":"call-1"},
			"endedReason":"customer-ended-call",
			"artifact":{"transcript":"AI: hello\nCustomer: will pay","recordingUrl":"https://rec/1.wav"},
			"analysis":{"summary":"customer will pay friday"},
			"durationSeconds":95.4,
			"cost":0.42
		}}`)
		event, ok, err := adapter.ParseWebhook(body)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, collection.CallEventEnded, event.Type)
		assert.Equal(t, "AI: hello\nCustomer: will pay", event.Transcript)
		assert.Equal(t, "customer will pay friday", event.Summary)
		assert.Equal(t, "https://rec/1.wav", event.RecordingURL)
		assert.Equal(t, 95, event.DurationSeconds)
		assert.Equal(t, "0.42", event.Cost.String())
	})

	t.Run("no-answer ended reason maps to a no-answer event", func(t *testing.T) {
		for _, reason := range []string{"customer-did-not-answer", "twilio-failed-busy", "voicemail"} {
			body := []byte(`{"message":{"type":"end-of-call-report","call":{"id":"call-1"},"endedReason":"` + reason + `"}}`)
			event, ok, err := adapter.ParseWebhook(body)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, collection.CallEventNoAnswer, event.Type, reason)
		}
	})

	t.Run("error ended reason maps to a failed event", func(t *testing.T) {
		body := []byte(`{"message":{"type":"end-of-call-report","call":{"id":"call-1"},"endedReason":"pipeline-error-openai-llm-failed"}}`)
		event, ok, err := adapter.ParseWebhook(body)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, collection.CallEventFailed, event.Type)
	})

	t.Run("irrelevant message types are acknowledged without an event", func(t *testing.T) {
		for _, body := range []string{
			`{"message":{"type":"speech-update","call":{"id":"call-1"}}}`,
			`{"message":{"type":"status-update","status":"queued","call":{"id":"call-1"}}}`,
		} {
			_, ok, err := adapter.ParseWebhook([]byte(body))
			require.NoError(t, err)
			assert.False(t, ok, body)
		}
	})

	t.Run("payload without call id is rejected", func(t *testing.T) {
		_, _, err := adapter.ParseWebhook([]byte(`{"message":{"type":"status-update","status":"in-progress"}}`))
		assert.Error(t, err)
	})

	t.Run("malformed JSON is rejected", func(t *testing.T) {
		_, _, err := adapter.ParseWebhook([]byte(`{not json`))
		assert.Error(t, err)
	})
}
