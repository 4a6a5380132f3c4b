package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, baseURL string) *SheetsLedger {
	t.Helper()
	l, err := NewSheetsLedger(SheetsConfig{
		BaseURL:         baseURL,
		APIKey:          "test-key",
		RegistrySheetID: "registry-sheet",
		Timeout:         2 * time.Second,
	}, nil)
	require.NoError(t, err)
	return l
}

func valuesJSON(rows [][]string) string {
	b, _ := json.Marshal(sheetsValueRange{Values: rows})
	return string(b)
}

func TestSheetsLedgerListClients(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v4/spreadsheets/registry-sheet/values/")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(valuesJSON([][]string{
			{"CL-001", "Asha Verma", "Verma Traders", "+919876543210", "hi", "sheet-cl-001"},
			{"CL-002", "No Phone", "Ghost Ltd", "", "", "sheet-cl-002"},
			{"CL-003", "Ravi Iyer", "Iyer Exports", "+919812345678", "en", "sheet-cl-003"},
		})))
	}))
	defer server.Close()

	clients, err := newTestLedger(t, server.URL).ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "CL-001", clients[0].Ref)
	assert.Equal(t, "sheet-cl-001", clients[0].SheetID)
	assert.Equal(t, "hi", clients[0].PreferredLanguage)
	assert.Equal(t, "CL-003", clients[1].Ref)
}

func TestSheetsLedgerFetchPending(t *testing.T) {
	ctx := context.Background()
	client := collection.Client{Ref: "CL-001", SheetID: "sheet-cl-001"}

	t.Run("returns callable rows only", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Path, "/v4/spreadsheets/sheet-cl-001/values/")
			_, _ = w.Write([]byte(valuesJSON([][]string{
				{"INV-001", "25000", "INR", "2024-06-01", "PENDING"},
				{"INV-002", "1200.50", "INR", "2024-05-15", "overdue"},
				{"INV-003", "9000", "INR", "2024-04-01", "PAID"},
				{"INV-004", "not-a-number", "INR", "2024-04-01", "PENDING"},
				{"INV-005", "500", "INR", "yesterday", "PENDING"},
			})))
		}))
		defer server.Close()

		invoices, err := newTestLedger(t, server.URL).FetchPending(ctx, client)
		require.NoError(t, err)
		require.Len(t, invoices, 2)
		assert.Equal(t, "INV-001", invoices[0].Ref)
		assert.Equal(t, "CL-001", invoices[0].ClientRef)
		assert.Equal(t, "25000", invoices[0].AmountDue.String())
		assert.Equal(t, collection.PaymentStatusPending, invoices[0].Status)
		assert.Equal(t, "INV-002", invoices[1].Ref)
		assert.Equal(t, collection.PaymentStatusOverdue, invoices[1].Status)
	})

	t.Run("propagates a read failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := newTestLedger(t, server.URL).FetchPending(ctx, client)
		assert.Error(t, err)
	})
}

func TestSheetsLedgerWriteOutcome(t *testing.T) {
	ctx := context.Background()
	record := collection.OutcomeRecord{
		InvoiceRef:   "INV-002",
		ClientRef:    "CL-001",
		SheetID:      "sheet-cl-001",
		Status:       collection.PaymentStatusCalled,
		SummaryLine:  "Outcome: PROMISE_TO_PAY | Promised: 2024-06-07",
		CallMadeAt:   time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC),
		RecordingURL: "https://rec/1.wav",
		NeedsReview:  false,
	}

	t.Run("updates the matching row", func(t *testing.T) {
		var captured sheetsBatchUpdateRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte(valuesJSON([][]string{{"INV-001"}, {"INV-002"}, {"INV-003"}})))
				return
			}
			assert.True(t, strings.HasSuffix(r.URL.Path, "/values:batchUpdate"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		require.NoError(t, newTestLedger(t, server.URL).WriteOutcome(ctx, record))
		require.Len(t, captured.Data, 1)
		// INV-002 is the second data row, so sheet row 3
		assert.Equal(t, "Invoices!E3:I3", captured.Data[0].Range)
		row := captured.Data[0].Values[0]
		assert.Equal(t, "CALLED", row[0])
		assert.Equal(t, record.SummaryLine, row[1])
		assert.Equal(t, "2024-06-03T10:30:00Z", row[2])
		assert.Equal(t, "https://rec/1.wav", row[3])
		assert.Equal(t, "", row[4])
	})

	t.Run("flags rows needing review", func(t *testing.T) {
		var captured sheetsBatchUpdateRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte(valuesJSON([][]string{{"INV-002"}})))
				return
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		flagged := record
		flagged.NeedsReview = true
		require.NoError(t, newTestLedger(t, server.URL).WriteOutcome(ctx, flagged))
		assert.Equal(t, "REVIEW", captured.Data[0].Values[0][4])
	})

	t.Run("missing row is ErrInvoiceNotFound", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(valuesJSON([][]string{{"INV-001"}})))
		}))
		defer server.Close()

		err := newTestLedger(t, server.URL).WriteOutcome(ctx, record)
		assert.ErrorIs(t, err, collection.ErrInvoiceNotFound)
	})

	t.Run("update failure is ErrLedgerWriteFailed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte(valuesJSON([][]string{{"INV-002"}})))
				return
			}
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		err := newTestLedger(t, server.URL).WriteOutcome(ctx, record)
		assert.ErrorIs(t, err, collection.ErrLedgerWriteFailed)
	})

	t.Run("record without a sheet id is rejected", func(t *testing.T) {
		bare := record
		bare.SheetID = ""
		err := newTestLedger(t, "http://unused").WriteOutcome(ctx, bare)
		assert.ErrorIs(t, err, collection.ErrLedgerWriteFailed)
	})

	t.Run("rejects config without credentials", func(t *testing.T) {
		_, err := NewSheetsLedger(SheetsConfig{APIKey: "k"}, nil)
		assert.Error(t, err)
	})
}
