package billing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hms/backend/internal/domain/shared"
)

// Refund is a reversal of previously paid money on an invoice. Refunds never
// exceed the amount paid at the time they are processed
type Refund struct {
	shared.BaseEntity
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	ProcessedBy uuid.UUID       `json:"processed_by"`
}

// NewRefund creates a new refund record
func NewRefund(invoiceID uuid.UUID, amount decimal.Decimal, reason string, processedBy uuid.UUID) *Refund {
	return &Refund{
		BaseEntity:  shared.NewBaseEntity(),
		InvoiceID:   invoiceID,
		Amount:      amount,
		Reason:      reason,
		ProcessedBy: processedBy,
	}
}
