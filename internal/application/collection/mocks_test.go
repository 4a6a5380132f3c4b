package collection

import (
	"context"
	"time"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock implementations

type mockCallAttemptRepository struct {
	mock.Mock
}

func (m *mockCallAttemptRepository) Save(ctx context.Context, attempt *collection.CallAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *mockCallAttemptRepository) FindByID(ctx context.Context, id uuid.UUID) (*collection.CallAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collection.CallAttempt), args.Error(1)
}

func (m *mockCallAttemptRepository) FindByHandle(ctx context.Context, handle collection.CallHandle) (*collection.CallAttempt, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collection.CallAttempt), args.Error(1)
}

func (m *mockCallAttemptRepository) FindNonTerminal(ctx context.Context) ([]*collection.CallAttempt, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*collection.CallAttempt), args.Error(1)
}

func (m *mockCallAttemptRepository) CountForInvoice(ctx context.Context, invoiceRef string) (int, error) {
	args := m.Called(ctx, invoiceRef)
	return args.Int(0), args.Error(1)
}

func (m *mockCallAttemptRepository) MaxAttemptNumber(ctx context.Context, invoiceRef string) (int, error) {
	args := m.Called(ctx, invoiceRef)
	return args.Int(0), args.Error(1)
}

type mockCallGateway struct {
	mock.Mock
}

func (m *mockCallGateway) PlaceCall(ctx context.Context, req collection.PlaceCallRequest) (collection.CallHandle, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(collection.CallHandle), args.Error(1)
}

type mockOutcomeClassifier struct {
	mock.Mock
}

func (m *mockOutcomeClassifier) Classify(ctx context.Context, transcript, summary string) (collection.Outcome, error) {
	args := m.Called(ctx, transcript, summary)
	return args.Get(0).(collection.Outcome), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) FetchPending(ctx context.Context, client collection.Client) ([]collection.Invoice, error) {
	args := m.Called(ctx, client)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]collection.Invoice), args.Error(1)
}

func (m *mockLedger) WriteOutcome(ctx context.Context, rec collection.OutcomeRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type mockDispatchLogStore struct {
	mock.Mock
}

func (m *mockDispatchLogStore) Append(ctx context.Context, t time.Time) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockDispatchLogStore) Since(ctx context.Context, cutoff time.Time) ([]time.Time, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]time.Time), args.Error(1)
}
