package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"
)

const (
	vapiDefaultBaseURL = "https://api.vapi.ai"
	vapiPhoneCallPath  = "/call/phone"
)

// VapiConfig holds the Vapi provider settings
type VapiConfig struct {
	BaseURL       string
	APIKey        string
	PhoneNumberID string
	// WebhookSecret is echoed back by the provider on webhook deliveries
	WebhookSecret string
	// DefaultRegion resolves national numbers to E.164 (e.g. "IN")
	DefaultRegion string
	Timeout       time.Duration
}

// Validate checks the configuration
func (c *VapiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("vapi: api key is required")
	}
	if c.PhoneNumberID == "" {
		return fmt.Errorf("vapi: phone number id is required")
	}
	return nil
}

// VapiAdapter implements collection.CallGateway against the Vapi voice API.
// Each placement carries a transient assistant configuration scripted from
// the invoice, so no assistant needs to be pre-provisioned.
type VapiAdapter struct {
	config     VapiConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVapiAdapter creates a new Vapi adapter
func NewVapiAdapter(config VapiConfig, logger *zap.Logger) (*VapiAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = vapiDefaultBaseURL
	}
	if config.DefaultRegion == "" {
		config.DefaultRegion = "IN"
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &VapiAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

type vapiCustomer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type vapiServer struct {
	URL    string `json:"url,omitempty"`
	Secret string `json:"secret,omitempty"`
}

type vapiAssistant struct {
	FirstMessage       string     `json:"firstMessage"`
	Model              vapiModel  `json:"model"`
	MaxDurationSeconds int        `json:"maxDurationSeconds,omitempty"`
	Server             vapiServer `json:"server,omitempty"`
}

type vapiModel struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Messages []vapiMessage `json:"messages"`
}

type vapiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type vapiCallRequest struct {
	PhoneNumberID string        `json:"phoneNumberId"`
	Customer      vapiCustomer  `json:"customer"`
	Assistant     vapiAssistant `json:"assistant"`
}

type vapiCallResponse struct {
	ID string `json:"id"`
}

type vapiErrorResponse struct {
	Message any `json:"message"`
	Error   string `json:"error"`
}

// PlaceCall requests an outbound reminder call and returns the provider's
// call id as the handle
func (a *VapiAdapter) PlaceCall(ctx context.Context, req collection.PlaceCallRequest) (collection.CallHandle, error) {
	number, err := a.normalizeNumber(req.Client.PhoneNumber)
	if err != nil {
		return "", fmt.Errorf("%w: %v", collection.ErrDispatchFailed, err)
	}

	body := vapiCallRequest{
		PhoneNumberID: a.config.PhoneNumberID,
		Customer: vapiCustomer{
			Number: number,
			Name:   req.Client.Name,
		},
		Assistant: vapiAssistant{
			FirstMessage: firstMessage(req),
			Model: vapiModel{
				Provider: "openai",
				Model:    "gpt-4o",
				Messages: []vapiMessage{
					{Role: "system", Content: systemPrompt(req)},
				},
			},
			MaxDurationSeconds: int(req.MaxDuration.Seconds()),
			Server: vapiServer{
				URL:    req.CallbackURL,
				Secret: a.config.WebhookSecret,
			},
		},
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("vapi: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+vapiPhoneCallPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("vapi: failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("vapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("vapi: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: provider throttled the placement", collection.ErrGatewayRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: provider rejected the credentials", collection.ErrGatewayUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var apiErr vapiErrorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		return "", fmt.Errorf("%w: status %d: %v", collection.ErrDispatchFailed, resp.StatusCode, apiErr.Message)
	}

	var callResp vapiCallResponse
	if err := json.Unmarshal(respBody, &callResp); err != nil {
		return "", fmt.Errorf("vapi: failed to parse response: %w", err)
	}
	if callResp.ID == "" {
		return "", fmt.Errorf("%w: provider returned no call id", collection.ErrDispatchFailed)
	}

	a.logger.Debug("Placed reminder call",
		zap.String("call_id", callResp.ID),
		zap.String("invoice_ref", req.Invoice.Ref))
	return collection.CallHandle(callResp.ID), nil
}

// normalizeNumber renders the client's phone number in E.164
func (a *VapiAdapter) normalizeNumber(raw string) (string, error) {
	parsed, err := phonenumbers.Parse(raw, a.config.DefaultRegion)
	if err != nil {
		return "", fmt.Errorf("invalid phone number %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("phone number %q is not dialable", raw)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// firstMessage is the assistant's opening line
func firstMessage(req collection.PlaceCallRequest) string {
	return fmt.Sprintf("Hello, am I speaking with %s from %s?",
		req.Client.Name, req.Client.CompanyName)
}

// systemPrompt scripts the assistant for one reminder call
func systemPrompt(req collection.PlaceCallRequest) string {
	prompt := fmt.Sprintf(
		"You are a polite accounts-receivable assistant calling %s of %s about invoice %s "+
			"for %s %s, due on %s. Remind them the payment is outstanding, ask when they "+
			"expect to pay, and note any dispute or request to resend the invoice. "+
			"Keep the call short and courteous. Do not threaten or negotiate discounts.",
		req.Client.Name,
		req.Client.CompanyName,
		req.Invoice.Ref,
		req.Invoice.Currency,
		req.Invoice.AmountDue.StringFixed(2),
		req.Invoice.DueDate.Format("2 January 2006"),
	)
	if req.Client.PreferredLanguage != "" {
		prompt += fmt.Sprintf(" Speak %s if the customer prefers it.", req.Client.PreferredLanguage)
	}
	if req.AttemptNumber > 1 {
		prompt += fmt.Sprintf(" This is reminder call number %d; acknowledge earlier attempts briefly.", req.AttemptNumber)
	}
	return prompt
}
