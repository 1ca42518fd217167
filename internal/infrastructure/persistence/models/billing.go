package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/domain/shared"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber   string                `gorm:"type:varchar(50);not null;uniqueIndex"`
	PatientID       uuid.UUID             `gorm:"type:uuid;not null;index:idx_invoices_merge_key,priority:1"`
	Type            billing.InvoiceType   `gorm:"type:varchar(20);not null;index:idx_invoices_merge_key,priority:2"`
	LineItems       billing.LineItems     `gorm:"type:jsonb;default:'[]'"`
	InvoiceDiscount decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Subtotal        decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Discount        decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	TotalPayable    decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	AmountPaid      decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Status          billing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_invoices_merge_key,priority:3"`
	LockedBy        *uuid.UUID            `gorm:"type:uuid"`
	LockedAt        *time.Time
	PaidAt          *time.Time
	RefundedAt      *time.Time
	CancelledAt     *time.Time
	CancelReason    string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	return &billing.Invoice{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{
				ID:        m.ID,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.UpdatedAt,
			},
			Version: m.Version,
		},
		InvoiceNumber:   m.InvoiceNumber,
		PatientID:       m.PatientID,
		Type:            m.Type,
		LineItems:       m.LineItems,
		InvoiceDiscount: m.InvoiceDiscount,
		Subtotal:        m.Subtotal,
		Discount:        m.Discount,
		TotalPayable:    m.TotalPayable,
		AmountPaid:      m.AmountPaid,
		Status:          m.Status,
		LockedBy:        m.LockedBy,
		LockedAt:        m.LockedAt,
		PaidAt:          m.PaidAt,
		RefundedAt:      m.RefundedAt,
		CancelledAt:     m.CancelledAt,
		CancelReason:    m.CancelReason,
	}
}

// FromDomain populates the persistence model from a domain Invoice entity.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.PatientID = inv.PatientID
	m.Type = inv.Type
	m.LineItems = inv.LineItems
	m.InvoiceDiscount = inv.InvoiceDiscount
	m.Subtotal = inv.Subtotal
	m.Discount = inv.Discount
	m.TotalPayable = inv.TotalPayable
	m.AmountPaid = inv.AmountPaid
	m.Status = inv.Status
	m.LockedBy = inv.LockedBy
	m.LockedAt = inv.LockedAt
	m.PaidAt = inv.PaidAt
	m.RefundedAt = inv.RefundedAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentModel is the persistence model for the append-only Payment record.
// The unique index on source_log_id is the durable idempotency barrier for
// reconciled gateway payments.
type PaymentModel struct {
	BaseModel
	InvoiceID   uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount      decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Method      billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	RecordedBy  uuid.UUID             `gorm:"type:uuid;not null"`
	RecordedAt  time.Time             `gorm:"not null;index"`
	SourceLogID *uuid.UUID            `gorm:"type:uuid;uniqueIndex"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment entity.
func (m *PaymentModel) ToDomain() *billing.Payment {
	return &billing.Payment{
		BaseEntity:  m.BaseModel.ToDomain(),
		InvoiceID:   m.InvoiceID,
		Amount:      m.Amount,
		Method:      m.Method,
		RecordedBy:  m.RecordedBy,
		RecordedAt:  m.RecordedAt,
		SourceLogID: m.SourceLogID,
	}
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment.
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomainBaseEntity(p.BaseEntity)
	m.InvoiceID = p.InvoiceID
	m.Amount = p.Amount
	m.Method = p.Method
	m.RecordedBy = p.RecordedBy
	m.RecordedAt = p.RecordedAt
	m.SourceLogID = p.SourceLogID
	return m
}

// RefundModel is the persistence model for the append-only Refund record.
type RefundModel struct {
	BaseModel
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Reason      string          `gorm:"type:varchar(500);not null"`
	ProcessedBy uuid.UUID       `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (RefundModel) TableName() string {
	return "refunds"
}

// ToDomain converts the persistence model to a domain Refund entity.
func (m *RefundModel) ToDomain() *billing.Refund {
	return &billing.Refund{
		BaseEntity:  m.BaseModel.ToDomain(),
		InvoiceID:   m.InvoiceID,
		Amount:      m.Amount,
		Reason:      m.Reason,
		ProcessedBy: m.ProcessedBy,
	}
}

// RefundModelFromDomain creates a new persistence model from a domain Refund.
func RefundModelFromDomain(r *billing.Refund) *RefundModel {
	m := &RefundModel{}
	m.FromDomainBaseEntity(r.BaseEntity)
	m.InvoiceID = r.InvoiceID
	m.Amount = r.Amount
	m.Reason = r.Reason
	m.ProcessedBy = r.ProcessedBy
	return m
}

// PaymentLogModel is the persistence model for gateway payment logs.
type PaymentLogModel struct {
	BaseModel
	TransactionID    string                   `gorm:"type:varchar(100);not null;uniqueIndex"`
	InvoiceNumber    string                   `gorm:"type:varchar(50);index"`
	Amount           decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Method           billing.PaymentMethod    `gorm:"type:varchar(20);not null"`
	Status           billing.PaymentLogStatus `gorm:"type:varchar(20);not null;index"`
	RawPayload       billing.RawPayload       `gorm:"type:jsonb;default:'{}'"`
	MatchedInvoiceID *uuid.UUID               `gorm:"type:uuid;index"`
	MatchedAt        *time.Time
}

// TableName returns the table name for GORM
func (PaymentLogModel) TableName() string {
	return "payment_logs"
}

// ToDomain converts the persistence model to a domain PaymentLog entity.
func (m *PaymentLogModel) ToDomain() *billing.PaymentLog {
	return &billing.PaymentLog{
		BaseEntity:       m.BaseModel.ToDomain(),
		TransactionID:    m.TransactionID,
		InvoiceNumber:    m.InvoiceNumber,
		Amount:           m.Amount,
		Method:           m.Method,
		Status:           m.Status,
		RawPayload:       m.RawPayload,
		MatchedInvoiceID: m.MatchedInvoiceID,
		MatchedAt:        m.MatchedAt,
	}
}

// PaymentLogModelFromDomain creates a new persistence model from a domain PaymentLog.
func PaymentLogModelFromDomain(l *billing.PaymentLog) *PaymentLogModel {
	m := &PaymentLogModel{}
	m.FromDomainBaseEntity(l.BaseEntity)
	m.TransactionID = l.TransactionID
	m.InvoiceNumber = l.InvoiceNumber
	m.Amount = l.Amount
	m.Method = l.Method
	m.Status = l.Status
	m.RawPayload = l.RawPayload
	m.MatchedInvoiceID = l.MatchedInvoiceID
	m.MatchedAt = l.MatchedAt
	return m
}

// InvoiceSequenceModel is the single-row durable counter backing invoice
// number allocation.
type InvoiceSequenceModel struct {
	Name      string    `gorm:"type:varchar(50);primary_key"`
	Value     int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceSequenceModel) TableName() string {
	return "invoice_sequences"
}
