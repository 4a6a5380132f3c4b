package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockCallAttemptRepository creates a GormCallAttemptRepository with a mocked SQL connection
func newMockCallAttemptRepository(t *testing.T) (*GormCallAttemptRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormCallAttemptRepository(gormDB), mock, mockDB
}

func attemptRows(id uuid.UUID, invoiceRef, state, handle string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "invoice_ref", "client_ref", "attempt_number", "state",
		"provider_handle", "outcome_tag", "needs_review", "created_at", "updated_at",
	}).AddRow(id, invoiceRef, "CL-001", 1, state, handle, "", false, now, now)
}

func TestNewGormCallAttemptRepository(t *testing.T) {
	t.Run("creates repository with valid DB", func(t *testing.T) {
		repo, _, mockDB := newMockCallAttemptRepository(t)
		defer mockDB.Close()

		assert.NotNil(t, repo)
		assert.NotNil(t, repo.db)
	})
}

func TestGormCallAttemptRepository_FindByID(t *testing.T) {
	t.Run("finds existing attempt", func(t *testing.T) {
		repo, mock, mockDB := newMockCallAttemptRepository(t)
		defer mockDB.Close()

		attemptID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "call_attempts" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(attemptID, 1).
			WillReturnRows(attemptRows(attemptID, "INV-001", "DISPATCHED", "vapi-1"))

		attempt, err := repo.FindByID(context.Background(), attemptID)

		assert.NoError(t, err)
		require.NotNil(t, attempt)
		assert.Equal(t, attemptID, attempt.ID)
		assert.Equal(t, "INV-001", attempt.InvoiceRef)
		assert.Equal(t, collection.CallStateDispatched, attempt.State)
		assert.Nil(t, attempt.Outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrAttemptNotFound for missing attempt", func(t *testing.T) {
		repo, mock, mockDB := newMockCallAttemptRepository(t)
		defer mockDB.Close()

		attemptID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "call_attempts" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(attemptID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		attempt, err := repo.FindByID(context.Background(), attemptID)

		assert.Nil(t, attempt)
		assert.ErrorIs(t, err, collection.ErrAttemptNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCallAttemptRepository_FindByHandle(t *testing.T) {
	t.Run("finds attempt by provider handle", func(t *testing.T) {
		repo, mock, mockDB := newMockCallAttemptRepository(t)
		defer mockDB.Close()

		attemptID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "call_attempts" WHERE provider_handle = \$1 ORDER BY .* LIMIT .*`).
			WithArgs("vapi-abc", 1).
			WillReturnRows(attemptRows(attemptID, "INV-001", "IN_PROGRESS", "vapi-abc"))

		attempt, err := repo.FindByHandle(context.Background(), collection.CallHandle("vapi-abc"))

		assert.NoError(t, err)
		require.NotNil(t, attempt)
		assert.Equal(t, "vapi-abc", attempt.ProviderHandle)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrAttemptNotFound for unknown handle", func(t *testing.T) {
		repo, mock, mockDB := newMockCallAttemptRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "call_attempts" WHERE provider_handle = \$1 ORDER BY .* LIMIT .*`).
			WithArgs("ghost", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		attempt, err := repo.FindByHandle(context.Background(), collection.CallHandle("ghost"))

		assert.Nil(t, attempt)
		assert.ErrorIs(t, err, collection.ErrAttemptNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCallAttemptRepository_FindNonTerminal(t *testing.T) {
	t.Run("returns only live attempts", func(t *testing.T) {
		repo, mock, mockDB := newMockCallAttemptRepository(t)
		defer mockDB.Close()

		rows := attemptRows(uuid.New(), "INV-001", "DISPATCHED", "vapi-1")
		mock.ExpectQuery(`SELECT \* FROM "call_attempts" WHERE state IN \(\$1,\$2,\$3\) ORDER BY created_at ASC`).
			WithArgs("PENDING_DISPATCH", "DISPATCHED", "IN_PROGRESS").
			WillReturnRows(rows)

		attempts, err := repo.FindNonTerminal(context.Background())

		assert.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Equal(t, collection.CallStateDispatched, attempts[0].State)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCallAttemptRepository_MaxAttemptNumber(t *testing.T) {
	t.Run("returns the highest attempt number", func(t *testing.T) {
		repo, mock, mockDB := newMockCallAttemptRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT MAX\(attempt_number\) FROM "call_attempts" WHERE invoice_ref = \$1`).
			WithArgs("INV-001").
			WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))

		max, err := repo.MaxAttemptNumber(context.Background(), "INV-001")

		assert.NoError(t, err)
		assert.Equal(t, 2, max)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns zero when the invoice has no attempts", func(t *testing.T) {
		repo, mock, mockDB := newMockCallAttemptRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT MAX\(attempt_number\) FROM "call_attempts" WHERE invoice_ref = \$1`).
			WithArgs("INV-NEW").
			WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

		max, err := repo.MaxAttemptNumber(context.Background(), "INV-NEW")

		assert.NoError(t, err)
		assert.Zero(t, max)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCallAttemptRepository_CountForInvoice(t *testing.T) {
	repo, mock, mockDB := newMockCallAttemptRepository(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "call_attempts" WHERE invoice_ref = \$1`).
		WithArgs("INV-001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountForInvoice(context.Background(), "INV-001")

	assert.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
