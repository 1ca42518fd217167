package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/domain/shared"
	"github.com/hms/backend/internal/infrastructure/persistence/models"
)

// GormPaymentLogRepository implements PaymentLogRepository using GORM
type GormPaymentLogRepository struct {
	db *gorm.DB
}

// NewGormPaymentLogRepository creates a new GormPaymentLogRepository
func NewGormPaymentLogRepository(db *gorm.DB) *GormPaymentLogRepository {
	return &GormPaymentLogRepository{db: db}
}

// FindByID finds a payment log by its ID
func (r *GormPaymentLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentLog, error) {
	var model models.PaymentLogModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTransactionID finds a payment log by gateway transaction ID
func (r *GormPaymentLogRepository) FindByTransactionID(ctx context.Context, transactionID string) (*billing.PaymentLog, error) {
	var model models.PaymentLogModel
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds payment logs with filtering
func (r *GormPaymentLogRepository) FindAll(ctx context.Context, filter billing.PaymentLogFilter) ([]billing.PaymentLog, error) {
	var logModels []models.PaymentLogModel
	query := r.db.WithContext(ctx).Model(&models.PaymentLogModel{})
	query = r.applyFilter(query, filter)

	if err := query.Find(&logModels).Error; err != nil {
		return nil, err
	}
	logs := make([]billing.PaymentLog, len(logModels))
	for i, model := range logModels {
		logs[i] = *model.ToDomain()
	}
	return logs, nil
}

// Count counts payment logs matching the filter
func (r *GormPaymentLogRepository) Count(ctx context.Context, filter billing.PaymentLogFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.PaymentLogModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates a payment log
func (r *GormPaymentLogRepository) Save(ctx context.Context, log *billing.PaymentLog) error {
	model := models.PaymentLogModelFromDomain(log)
	return r.db.WithContext(ctx).Save(model).Error
}

// applyFilter applies filter options to the query including pagination
func (r *GormPaymentLogRepository) applyFilter(query *gorm.DB, filter billing.PaymentLogFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, PaymentLogSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir)
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormPaymentLogRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.PaymentLogFilter) *gorm.DB {
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("transaction_id ILIKE ? OR invoice_number ILIKE ?", searchPattern, searchPattern)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Unmatched != nil {
		if *filter.Unmatched {
			query = query.Where("matched_invoice_id IS NULL")
		} else {
			query = query.Where("matched_invoice_id IS NOT NULL")
		}
	}

	return query
}

// Ensure GormPaymentLogRepository implements PaymentLogRepository
var _ billing.PaymentLogRepository = (*GormPaymentLogRepository)(nil)
