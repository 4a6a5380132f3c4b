package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	sheetsDefaultBaseURL = "https://sheets.googleapis.com"

	// registryRange lists clients: ref, name, company, phone, language, sheet id
	registryRange = "Clients!A2:F"
	// invoiceRange lists invoices: ref, amount, currency, due date, status,
	// summary, call made at, recording url, needs review
	invoiceRange = "Invoices!A2:I"
	// invoiceRefRange is the ref column alone, for row lookup on write-back
	invoiceRefRange = "Invoices!A2:A"
)

// SheetsConfig holds the spreadsheet ledger settings
type SheetsConfig struct {
	BaseURL string
	APIKey  string
	// RegistrySheetID is the spreadsheet holding the client registry
	RegistrySheetID string
	Timeout         time.Duration
}

// Validate checks the configuration
func (c *SheetsConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("sheets: api key is required")
	}
	if c.RegistrySheetID == "" {
		return fmt.Errorf("sheets: registry sheet id is required")
	}
	return nil
}

// SheetsLedger implements collection.Ledger and collection.ClientDirectory
// against a Google-Sheets-style values API. One registry spreadsheet lists
// the clients; each client row names the spreadsheet its invoices live in.
type SheetsLedger struct {
	config     SheetsConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSheetsLedger creates a new spreadsheet ledger adapter
func NewSheetsLedger(config SheetsConfig, logger *zap.Logger) (*SheetsLedger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = sheetsDefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SheetsLedger{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

type sheetsValueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values"`
}

type sheetsBatchUpdateRequest struct {
	ValueInputOption string             `json:"valueInputOption"`
	Data             []sheetsValueRange `json:"data"`
}

// ListClients reads the client registry sheet
func (l *SheetsLedger) ListClients(ctx context.Context) ([]collection.Client, error) {
	rows, err := l.readRange(ctx, l.config.RegistrySheetID, registryRange)
	if err != nil {
		return nil, fmt.Errorf("sheets: reading client registry: %w", err)
	}

	clients := make([]collection.Client, 0, len(rows))
	for i, row := range rows {
		if cell(row, 0) == "" {
			continue
		}
		client := collection.Client{
			Ref:               cell(row, 0),
			Name:              cell(row, 1),
			CompanyName:       cell(row, 2),
			PhoneNumber:       cell(row, 3),
			PreferredLanguage: cell(row, 4),
			SheetID:           cell(row, 5),
		}
		if client.PhoneNumber == "" || client.SheetID == "" {
			l.logger.Warn("Skipping registry row without phone or sheet id",
				zap.Int("row", i+2),
				zap.String("client_ref", client.Ref))
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

// FetchPending reads the client's invoice sheet and returns the callable rows
func (l *SheetsLedger) FetchPending(ctx context.Context, client collection.Client) ([]collection.Invoice, error) {
	rows, err := l.readRange(ctx, client.SheetID, invoiceRange)
	if err != nil {
		return nil, fmt.Errorf("sheets: reading invoices for %s: %w", client.Ref, err)
	}

	invoices := make([]collection.Invoice, 0, len(rows))
	for i, row := range rows {
		ref := cell(row, 0)
		if ref == "" {
			continue
		}
		status := collection.PaymentStatus(strings.ToUpper(cell(row, 4)))
		if !status.IsCallable() {
			continue
		}
		amount, err := decimal.NewFromString(cell(row, 1))
		if err != nil {
			l.logger.Warn("Skipping invoice row with unparseable amount",
				zap.Int("row", i+2),
				zap.String("invoice_ref", ref),
				zap.String("amount", cell(row, 1)))
			continue
		}
		dueDate, err := time.Parse("2006-01-02", cell(row, 3))
		if err != nil {
			l.logger.Warn("Skipping invoice row with unparseable due date",
				zap.Int("row", i+2),
				zap.String("invoice_ref", ref),
				zap.String("due_date", cell(row, 3)))
			continue
		}
		invoices = append(invoices, collection.Invoice{
			Ref:       ref,
			ClientRef: client.Ref,
			AmountDue: amount,
			Currency:  cell(row, 2),
			DueDate:   dueDate,
			Status:    status,
		})
	}
	return invoices, nil
}

// WriteOutcome locates the invoice row by ref and updates its status,
// summary, call timestamp, recording URL and review columns
func (l *SheetsLedger) WriteOutcome(ctx context.Context, rec collection.OutcomeRecord) error {
	if rec.SheetID == "" {
		return fmt.Errorf("%w: outcome for %s carries no sheet id", collection.ErrLedgerWriteFailed, rec.InvoiceRef)
	}

	refs, err := l.readRange(ctx, rec.SheetID, invoiceRefRange)
	if err != nil {
		return fmt.Errorf("%w: locating invoice %s: %v", collection.ErrLedgerWriteFailed, rec.InvoiceRef, err)
	}
	rowNum := 0
	for i, row := range refs {
		if cell(row, 0) == rec.InvoiceRef {
			rowNum = i + 2
			break
		}
	}
	if rowNum == 0 {
		return fmt.Errorf("%w: invoice %s", collection.ErrInvoiceNotFound, rec.InvoiceRef)
	}

	review := ""
	if rec.NeedsReview {
		review = "REVIEW"
	}
	update := sheetsBatchUpdateRequest{
		ValueInputOption: "RAW",
		Data: []sheetsValueRange{
			{
				Range: fmt.Sprintf("Invoices!E%d:I%d", rowNum, rowNum),
				Values: [][]string{{
					rec.Status.String(),
					rec.SummaryLine,
					rec.CallMadeAt.Format(time.RFC3339),
					rec.RecordingURL,
					review,
				}},
			},
		},
	}

	if err := l.batchUpdate(ctx, rec.SheetID, update); err != nil {
		return fmt.Errorf("%w: invoice %s: %v", collection.ErrLedgerWriteFailed, rec.InvoiceRef, err)
	}

	l.logger.Debug("Wrote outcome to ledger",
		zap.String("invoice_ref", rec.InvoiceRef),
		zap.String("status", rec.Status.String()),
		zap.Int("row", rowNum))
	return nil
}

func (l *SheetsLedger) readRange(ctx context.Context, sheetID, valueRange string) ([][]string, error) {
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?key=%s",
		l.config.BaseURL, sheetID, url.PathEscape(valueRange), l.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d reading %s", resp.StatusCode, valueRange)
	}

	var vr sheetsValueRange
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return vr.Values, nil
}

func (l *SheetsLedger) batchUpdate(ctx context.Context, sheetID string, update sheetsBatchUpdateRequest) error {
	bodyBytes, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values:batchUpdate?key=%s",
		l.config.BaseURL, sheetID, l.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d updating sheet", resp.StatusCode)
	}
	return nil
}

// cell reads a column from a ragged sheet row
func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
