package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	orchestration "github.com/azeebneuron/PaymentReminderCallerAgent/internal/application/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) RunCycle(ctx context.Context, clients []collection.Client) (orchestration.CycleSummary, error) {
	args := m.Called(ctx, clients)
	return args.Get(0).(orchestration.CycleSummary), args.Error(1)
}

func (m *mockOrchestrator) TriggerRetry(ctx context.Context, invoiceRef string) error {
	args := m.Called(ctx, invoiceRef)
	return args.Error(0)
}

func (m *mockOrchestrator) ReconcileLedger(ctx context.Context) (int, int) {
	args := m.Called(ctx)
	return args.Int(0), args.Int(1)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ListClients(ctx context.Context) ([]collection.Client, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]collection.Client), args.Error(1)
}

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Save(ctx context.Context, attempt *collection.CallAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *mockRepository) FindByID(ctx context.Context, id uuid.UUID) (*collection.CallAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collection.CallAttempt), args.Error(1)
}

func (m *mockRepository) FindByHandle(ctx context.Context, handle collection.CallHandle) (*collection.CallAttempt, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collection.CallAttempt), args.Error(1)
}

func (m *mockRepository) FindNonTerminal(ctx context.Context) ([]*collection.CallAttempt, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*collection.CallAttempt), args.Error(1)
}

func (m *mockRepository) CountForInvoice(ctx context.Context, invoiceRef string) (int, error) {
	args := m.Called(ctx, invoiceRef)
	return args.Int(0), args.Error(1)
}

func (m *mockRepository) MaxAttemptNumber(ctx context.Context, invoiceRef string) (int, error) {
	args := m.Called(ctx, invoiceRef)
	return args.Int(0), args.Error(1)
}

type callFixture struct {
	orchestrator *mockOrchestrator
	directory    *mockDirectory
	repository   *mockRepository
	engine       *gin.Engine
}

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()
	f := &callFixture{
		orchestrator: new(mockOrchestrator),
		directory:    new(mockDirectory),
		repository:   new(mockRepository),
		engine:       gin.New(),
	}
	h := NewCallHandler(f.orchestrator, f.directory, f.repository, zap.NewNop())
	h.RegisterRoutes(f.engine.Group("/api/v1"))
	return f
}

func (f *callFixture) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCallHandlerRunCycle(t *testing.T) {
	clients := []collection.Client{{Ref: "CL-001", PhoneNumber: "+919876543210", SheetID: "sheet-1"}}

	t.Run("runs a cycle and returns the summary", func(t *testing.T) {
		f := newCallFixture(t)
		f.directory.On("ListClients", mock.Anything).Return(clients, nil)
		f.orchestrator.On("RunCycle", mock.Anything, clients).
			Return(orchestration.CycleSummary{Clients: 1, Candidates: 3, Dispatched: 2, Skipped: 1}, nil)

		w := f.do(http.MethodPost, "/api/v1/calls/run")

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)
		data := resp.Data.(map[string]interface{})
		assert.EqualValues(t, 2, data["dispatched"])
	})

	t.Run("returns 409 while a cycle is running", func(t *testing.T) {
		f := newCallFixture(t)
		f.directory.On("ListClients", mock.Anything).Return(clients, nil)
		f.orchestrator.On("RunCycle", mock.Anything, clients).
			Return(orchestration.CycleSummary{}, orchestration.ErrCycleInProgress)

		w := f.do(http.MethodPost, "/api/v1/calls/run")

		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeCycleInProgress, resp.Error.Code)
	})

	t.Run("returns 500 when the directory is unreachable", func(t *testing.T) {
		f := newCallFixture(t)
		f.directory.On("ListClients", mock.Anything).Return(nil, errors.New("registry down"))

		w := f.do(http.MethodPost, "/api/v1/calls/run")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		f.orchestrator.AssertNotCalled(t, "RunCycle", mock.Anything, mock.Anything)
	})
}

func TestCallHandlerGetAttempt(t *testing.T) {
	t.Run("returns the attempt", func(t *testing.T) {
		f := newCallFixture(t)
		attempt := collection.NewCallAttempt("INV-001", "CL-001", 1)
		require.NoError(t, attempt.MarkDispatched("call-1", time.Now()))
		f.repository.On("FindByID", mock.Anything, attempt.ID).Return(attempt, nil)

		w := f.do(http.MethodGet, "/api/v1/calls/"+attempt.ID.String())

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "INV-001", data["invoice_ref"])
		assert.Equal(t, "DISPATCHED", data["state"])
	})

	t.Run("returns 404 for an unknown attempt", func(t *testing.T) {
		f := newCallFixture(t)
		id := uuid.New()
		f.repository.On("FindByID", mock.Anything, id).Return(nil, collection.ErrAttemptNotFound)

		w := f.do(http.MethodGet, "/api/v1/calls/"+id.String())

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("returns 400 for a malformed id", func(t *testing.T) {
		f := newCallFixture(t)

		w := f.do(http.MethodGet, "/api/v1/calls/not-a-uuid")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCallHandlerTriggerRetry(t *testing.T) {
	t.Run("schedules a retry", func(t *testing.T) {
		f := newCallFixture(t)
		f.orchestrator.On("TriggerRetry", mock.Anything, "INV-001").Return(nil)

		w := f.do(http.MethodPost, "/api/v1/invoices/INV-001/retry")

		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("maps an exhausted retry budget to 422", func(t *testing.T) {
		f := newCallFixture(t)
		f.orchestrator.On("TriggerRetry", mock.Anything, "INV-001").
			Return(collection.ErrRetriesExhausted)

		w := f.do(http.MethodPost, "/api/v1/invoices/INV-001/retry")

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeRetriesExhausted, resp.Error.Code)
	})
}

func TestCallHandlerReconcile(t *testing.T) {
	f := newCallFixture(t)
	f.orchestrator.On("ReconcileLedger", mock.Anything).Return(2, 1)

	w := f.do(http.MethodPost, "/api/v1/ledger/reconcile")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 2, data["written"])
	assert.EqualValues(t, 1, data["remaining"])
}
