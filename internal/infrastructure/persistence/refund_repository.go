package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/infrastructure/persistence/models"
)

// GormRefundRepository implements RefundRepository using GORM
type GormRefundRepository struct {
	db *gorm.DB
}

// NewGormRefundRepository creates a new GormRefundRepository
func NewGormRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// Save appends a refund record
func (r *GormRefundRepository) Save(ctx context.Context, refund *billing.Refund) error {
	model := models.RefundModelFromDomain(refund)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByInvoice returns all refunds for an invoice in processing order
func (r *GormRefundRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.Refund, error) {
	var refundModels []models.RefundModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Find(&refundModels).Error; err != nil {
		return nil, err
	}
	refunds := make([]billing.Refund, len(refundModels))
	for i, model := range refundModels {
		refunds[i] = *model.ToDomain()
	}
	return refunds, nil
}

// Ensure GormRefundRepository implements RefundRepository
var _ billing.RefundRepository = (*GormRefundRepository)(nil)
