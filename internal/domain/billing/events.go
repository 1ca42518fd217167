package billing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hms/backend/internal/domain/shared"
)

// Event type names for the billing aggregate
const (
	EventTypeInvoiceCreated          = "InvoiceCreated"
	EventTypeInvoiceLineItemsChanged = "InvoiceLineItemsChanged"
	EventTypeInvoiceFinalized        = "InvoiceFinalized"
	EventTypeInvoicePaid             = "InvoicePaid"
	EventTypeInvoiceCancelled        = "InvoiceCancelled"
	EventTypeInvoiceRefunded         = "InvoiceRefunded"
	EventTypePaymentRecorded         = "PaymentRecorded"
	EventTypeRefundProcessed         = "RefundProcessed"
	EventTypePatientDischarged       = "PatientDischarged"
)

// InvoiceCreatedEvent is raised when a new invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	InvoiceType   InvoiceType     `json:"invoice_type"`
	TotalPayable  decimal.Decimal `json:"total_payable"`
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		InvoiceType:     inv.Type,
		TotalPayable:    inv.TotalPayable,
	}
}

// InvoiceLineItemsChangedEvent is raised when an open invoice's line items change
type InvoiceLineItemsChangedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	TotalPayable  decimal.Decimal `json:"total_payable"`
}

// NewInvoiceLineItemsChangedEvent creates a new InvoiceLineItemsChangedEvent
func NewInvoiceLineItemsChangedEvent(inv *Invoice) *InvoiceLineItemsChangedEvent {
	return &InvoiceLineItemsChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceLineItemsChanged, "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Subtotal:        inv.Subtotal,
		Discount:        inv.Discount,
		TotalPayable:    inv.TotalPayable,
	}
}

// InvoiceFinalizedEvent is raised when an invoice's line items are locked
type InvoiceFinalizedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	LockedBy      uuid.UUID `json:"locked_by"`
}

// NewInvoiceFinalizedEvent creates a new InvoiceFinalizedEvent
func NewInvoiceFinalizedEvent(inv *Invoice) *InvoiceFinalizedEvent {
	lockedBy := uuid.Nil
	if inv.LockedBy != nil {
		lockedBy = *inv.LockedBy
	}
	return &InvoiceFinalizedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceFinalized, "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		LockedBy:        lockedBy,
	}
}

// InvoicePaidEvent is raised when an invoice becomes fully paid
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	TotalPayable  decimal.Decimal `json:"total_payable"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		TotalPayable:    inv.TotalPayable,
		AmountPaid:      inv.AmountPaid,
	}
}

// InvoiceCancelledEvent is raised when an invoice is voided
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Reason        string    `json:"reason"`
}

// NewInvoiceCancelledEvent creates a new InvoiceCancelledEvent
func NewInvoiceCancelledEvent(inv *Invoice) *InvoiceCancelledEvent {
	return &InvoiceCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCancelled, "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Reason:          inv.CancelReason,
	}
}

// InvoiceRefundedEvent is raised when an invoice is fully refunded
type InvoiceRefundedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	PatientID     uuid.UUID `json:"patient_id"`
}

// NewInvoiceRefundedEvent creates a new InvoiceRefundedEvent
func NewInvoiceRefundedEvent(inv *Invoice) *InvoiceRefundedEvent {
	return &InvoiceRefundedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceRefunded, "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
	}
}

// PaymentRecordedEvent is raised whenever a payment is applied to an invoice
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Reconciled    bool            `json:"reconciled"`
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent
func NewPaymentRecordedEvent(inv *Invoice, payment *Payment) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PaymentID:       payment.ID,
		Amount:          payment.Amount,
		Method:          payment.Method,
		AmountPaid:      inv.AmountPaid,
		Reconciled:      payment.IsReconciled(),
	}
}

// RefundProcessedEvent is raised whenever a refund is applied to an invoice
type RefundProcessedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	RefundID      uuid.UUID       `json:"refund_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
}

// NewRefundProcessedEvent creates a new RefundProcessedEvent
func NewRefundProcessedEvent(inv *Invoice, refund *Refund) *RefundProcessedEvent {
	return &RefundProcessedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRefundProcessed, "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		RefundID:        refund.ID,
		Amount:          refund.Amount,
		Reason:          refund.Reason,
		AmountPaid:      inv.AmountPaid,
	}
}

// PatientDischargedEvent is published by the admission module when a patient
// is discharged. The billing ledger only consumes it: a flat list of priced
// charges plus the patient id, no knowledge of ward internals
type PatientDischargedEvent struct {
	shared.BaseDomainEvent
	PatientID    uuid.UUID         `json:"patient_id"`
	DischargedBy uuid.UUID         `json:"discharged_by"`
	Charges      []DischargeCharge `json:"charges"`
}

// DischargeCharge is one priced charge accumulated during an admission
type DischargeCharge struct {
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Qty         int             `json:"qty"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewPatientDischargedEvent creates a new PatientDischargedEvent
func NewPatientDischargedEvent(patientID, dischargedBy uuid.UUID, charges []DischargeCharge) *PatientDischargedEvent {
	return &PatientDischargedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePatientDischarged, "Patient", patientID),
		PatientID:       patientID,
		DischargedBy:    dischargedBy,
		Charges:         charges,
	}
}
