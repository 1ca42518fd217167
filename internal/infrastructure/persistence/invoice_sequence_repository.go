package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/hms/backend/internal/domain/billing"
)

const invoiceSequenceName = "invoice_number"

// GormInvoiceSequence implements InvoiceSequence on top of a single-row
// durable counter. The atomic UPDATE ... RETURNING makes concurrent
// allocations serialize at the database, so numbers never collide.
type GormInvoiceSequence struct {
	db *gorm.DB
}

// NewGormInvoiceSequence creates a new GormInvoiceSequence
func NewGormInvoiceSequence(db *gorm.DB) *GormInvoiceSequence {
	return &GormInvoiceSequence{db: db}
}

// Next returns the next invoice number, e.g. "INV-000042"
func (s *GormInvoiceSequence) Next(ctx context.Context) (string, error) {
	var next int64
	err := s.db.WithContext(ctx).
		Raw(`UPDATE invoice_sequences SET value = value + 1, updated_at = NOW() WHERE name = ? RETURNING value`,
			invoiceSequenceName).
		Scan(&next).Error
	if err != nil {
		return "", fmt.Errorf("failed to advance invoice sequence: %w", err)
	}
	if next == 0 {
		// Counter row is seeded by migrations; a zero result means it is missing
		return "", fmt.Errorf("invoice sequence %q is not seeded", invoiceSequenceName)
	}
	return fmt.Sprintf("INV-%06d", next), nil
}

// Ensure GormInvoiceSequence implements InvoiceSequence
var _ billing.InvoiceSequence = (*GormInvoiceSequence)(nil)
