package persistence

import (
	"context"
	"errors"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCallAttemptRepository implements collection.CallAttemptRepository using GORM
type GormCallAttemptRepository struct {
	db *gorm.DB
}

// NewGormCallAttemptRepository creates a new GormCallAttemptRepository
func NewGormCallAttemptRepository(db *gorm.DB) *GormCallAttemptRepository {
	return &GormCallAttemptRepository{db: db}
}

// Save inserts or updates an attempt
func (r *GormCallAttemptRepository) Save(ctx context.Context, attempt *collection.CallAttempt) error {
	var model models.CallAttemptModel
	model.FromDomain(attempt)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

// FindByID finds an attempt by its ID
func (r *GormCallAttemptRepository) FindByID(ctx context.Context, id uuid.UUID) (*collection.CallAttempt, error) {
	var model models.CallAttemptModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, collection.ErrAttemptNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByHandle finds the attempt holding a provider handle
func (r *GormCallAttemptRepository) FindByHandle(ctx context.Context, handle collection.CallHandle) (*collection.CallAttempt, error) {
	var model models.CallAttemptModel
	if err := r.db.WithContext(ctx).
		Where("provider_handle = ?", handle.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, collection.ErrAttemptNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindNonTerminal returns every attempt not yet in a terminal state
func (r *GormCallAttemptRepository) FindNonTerminal(ctx context.Context) ([]*collection.CallAttempt, error) {
	var attemptModels []models.CallAttemptModel
	if err := r.db.WithContext(ctx).
		Where("state IN ?", []string{
			collection.CallStatePendingDispatch.String(),
			collection.CallStateDispatched.String(),
			collection.CallStateInProgress.String(),
		}).
		Order("created_at ASC").
		Find(&attemptModels).Error; err != nil {
		return nil, err
	}

	attempts := make([]*collection.CallAttempt, len(attemptModels))
	for i := range attemptModels {
		attempts[i] = attemptModels[i].ToDomain()
	}
	return attempts, nil
}

// CountForInvoice returns how many attempts exist for an invoice
func (r *GormCallAttemptRepository) CountForInvoice(ctx context.Context, invoiceRef string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.CallAttemptModel{}).
		Where("invoice_ref = ?", invoiceRef).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// MaxAttemptNumber returns the highest attempt number for an invoice, zero
// when none exist
func (r *GormCallAttemptRepository) MaxAttemptNumber(ctx context.Context, invoiceRef string) (int, error) {
	var max *int
	if err := r.db.WithContext(ctx).
		Model(&models.CallAttemptModel{}).
		Where("invoice_ref = ?", invoiceRef).
		Select("MAX(attempt_number)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}
