package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hms/backend/internal/domain/shared"
)

// PaymentMethod represents how a payment was made
type PaymentMethod string

const (
	PaymentMethodCash      PaymentMethod = "CASH"
	PaymentMethodCard      PaymentMethod = "CARD"
	PaymentMethodMpesa     PaymentMethod = "MPESA"
	PaymentMethodInsurance PaymentMethod = "INSURANCE"
	PaymentMethodBank      PaymentMethod = "BANK"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodMpesa,
		PaymentMethodInsurance, PaymentMethodBank:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// Payment is one application of money against an invoice. Payments are
// append-only: a correction is made via a Refund, never by editing or
// deleting a payment
type Payment struct {
	shared.BaseEntity
	InvoiceID  uuid.UUID       `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	RecordedBy uuid.UUID       `json:"recorded_by"`
	RecordedAt time.Time       `json:"recorded_at"`
	// SourceLogID is set only when the payment originated from reconciling an
	// external payment log; its uniqueness is the durable idempotency barrier
	SourceLogID *uuid.UUID `json:"source_log_id,omitempty"`
}

// NewPayment creates a new payment record
func NewPayment(invoiceID uuid.UUID, amount decimal.Decimal, method PaymentMethod, recordedBy uuid.UUID, sourceLogID *uuid.UUID) *Payment {
	return &Payment{
		BaseEntity:  shared.NewBaseEntity(),
		InvoiceID:   invoiceID,
		Amount:      amount,
		Method:      method,
		RecordedBy:  recordedBy,
		RecordedAt:  time.Now(),
		SourceLogID: sourceLogID,
	}
}

// IsReconciled returns true if the payment came from a gateway payment log
func (p *Payment) IsReconciled() bool {
	return p.SourceLogID != nil
}
