package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"go.uber.org/zap"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"
	geminiDefaultModel   = "gemini-2.0-flash"
)

// GeminiConfig holds the Gemini classifier settings
type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Validate checks the configuration
func (c *GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("gemini: api key is required")
	}
	return nil
}

// GeminiClassifier implements collection.OutcomeClassifier against the
// Gemini generateContent API. The model is prompted to answer with a single
// JSON object; the adapter tolerates markdown code fences around it.
type GeminiClassifier struct {
	config     GeminiConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGeminiClassifier creates a new Gemini classifier
func NewGeminiClassifier(config GeminiConfig, logger *zap.Logger) (*GeminiClassifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = geminiDefaultBaseURL
	}
	if config.Model == "" {
		config.Model = geminiDefaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GeminiClassifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// classification is the JSON shape the model is asked to produce
type classification struct {
	Outcome            string  `json:"outcome"`
	Notes              string  `json:"notes"`
	Confidence         float64 `json:"confidence"`
	PromisedDate       string  `json:"promised_payment_date"`
	NextFollowUpDate   string  `json:"next_followup_date"`
	NeedsInvoiceResend bool    `json:"needs_invoice_resend"`
	DisputeReason      string  `json:"dispute_reason"`
	Language           string  `json:"language"`
	Sentiment          string  `json:"sentiment"`
}

// Classify extracts a structured outcome from a call transcript
func (c *GeminiClassifier) Classify(ctx context.Context, transcript, summary string) (collection.Outcome, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: classificationPrompt(transcript, summary)}}},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return collection.Outcome{}, fmt.Errorf("gemini: failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.config.BaseURL, c.config.Model, c.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return collection.Outcome{}, fmt.Errorf("gemini: failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return collection.Outcome{}, fmt.Errorf("%w: %v", collection.ErrClassificationFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return collection.Outcome{}, fmt.Errorf("%w: reading response: %v", collection.ErrClassificationFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return collection.Outcome{}, fmt.Errorf("%w: status %d", collection.ErrClassificationFailed, resp.StatusCode)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return collection.Outcome{}, fmt.Errorf("%w: parsing response: %v", collection.ErrClassificationFailed, err)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return collection.Outcome{}, fmt.Errorf("%w: empty response", collection.ErrClassificationFailed)
	}

	text := geminiResp.Candidates[0].Content.Parts[0].Text
	parsed, err := parseClassification(text)
	if err != nil {
		c.logger.Warn("Classifier produced unparseable output", zap.Error(err))
		return collection.Outcome{}, fmt.Errorf("%w: %v", collection.ErrClassificationFailed, err)
	}

	return parsed.toOutcome(), nil
}

// parseClassification extracts the JSON object from the model's reply,
// stripping markdown code fences when present
func parseClassification(text string) (classification, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	// Tolerate prose around the object
	if start := strings.Index(cleaned, "{"); start > 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	var parsed classification
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return classification{}, fmt.Errorf("no JSON object in model reply: %w", err)
	}
	if parsed.Outcome == "" {
		return classification{}, fmt.Errorf("model reply carries no outcome field")
	}
	return parsed, nil
}

// toOutcome maps the raw classification to the domain outcome. An outcome
// label the domain does not know degrades to UNCLEAR rather than failing.
func (c classification) toOutcome() collection.Outcome {
	tag := collection.OutcomeTag(strings.ToUpper(strings.TrimSpace(c.Outcome)))
	if !tag.IsValid() {
		tag = collection.OutcomeTagUnclear
	}

	outcome := collection.Outcome{
		Tag:                tag,
		Note:               c.Notes,
		Confidence:         c.Confidence,
		NeedsInvoiceResend: c.NeedsInvoiceResend,
		DisputeReason:      c.DisputeReason,
		DetectedLanguage:   c.Language,
		CustomerSentiment:  parseSentiment(c.Sentiment),
	}
	if d, err := time.Parse("2006-01-02", c.PromisedDate); err == nil {
		outcome.PromisedPaymentDate = &d
	}
	if d, err := time.Parse("2006-01-02", c.NextFollowUpDate); err == nil {
		outcome.NextFollowUpDate = &d
	}
	return outcome
}

func parseSentiment(s string) collection.Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return collection.SentimentPositive
	case "negative":
		return collection.SentimentNegative
	case "angry":
		return collection.SentimentAngry
	default:
		return collection.SentimentNeutral
	}
}

// classificationPrompt builds the instruction for one transcript
func classificationPrompt(transcript, summary string) string {
	var b strings.Builder
	b.WriteString("You are analysing the transcript of a payment reminder call made to a business customer about an overdue invoice.\n")
	b.WriteString("Answer with a single JSON object, no prose, with these fields:\n")
	b.WriteString(`{"outcome":"PROMISE_TO_PAY|DISPUTE|NO_ANSWER|WRONG_NUMBER|PAID_ALREADY|UNCLEAR",`)
	b.WriteString(`"notes":"one sentence of what the customer said",`)
	b.WriteString(`"confidence":0.0,`)
	b.WriteString(`"promised_payment_date":"YYYY-MM-DD or empty",`)
	b.WriteString(`"next_followup_date":"YYYY-MM-DD or empty",`)
	b.WriteString(`"needs_invoice_resend":false,`)
	b.WriteString(`"dispute_reason":"empty unless outcome is DISPUTE",`)
	b.WriteString(`"language":"language the customer spoke",`)
	b.WriteString(`"sentiment":"positive|neutral|negative|angry"}`)
	b.WriteString("\n\nTranscript:\n")
	b.WriteString(transcript)
	if summary != "" {
		b.WriteString("\n\nProvider summary:\n")
		b.WriteString(summary)
	}
	return b.String()
}
