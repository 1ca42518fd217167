package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hms/backend/internal/domain/shared"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	PatientID *uuid.UUID     // Filter by patient
	Status    *InvoiceStatus // Filter by status
	Type      *InvoiceType   // Filter by invoice type
	FromDate  *time.Time     // Filter by creation date range start
	ToDate    *time.Time     // Filter by creation date range end
}

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByInvoiceNumber finds an invoice by its human-readable number
	FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*Invoice, error)

	// FindPendingByPatientAndType finds open invoices matching the merge key,
	// oldest first
	FindPendingByPatientAndType(ctx context.Context, patientID uuid.UUID, invoiceType InvoiceType) ([]Invoice, error)

	// FindAll finds invoices with filtering
	FindAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// Count counts invoices matching the filter
	Count(ctx context.Context, filter InvoiceFilter) (int64, error)

	// Save creates or updates an invoice
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, invoice *Invoice) error
}

// PaymentRepository defines the interface for payment persistence.
// Payments are append-only; there is no update or delete
type PaymentRepository interface {
	// Save appends a payment record
	Save(ctx context.Context, payment *Payment) error

	// FindByInvoice returns all payments for an invoice in recording order
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)

	// FindBySourceLogID finds the payment created from a reconciled payment log
	FindBySourceLogID(ctx context.Context, sourceLogID uuid.UUID) (*Payment, error)
}

// RefundRepository defines the interface for refund persistence
type RefundRepository interface {
	// Save appends a refund record
	Save(ctx context.Context, refund *Refund) error

	// FindByInvoice returns all refunds for an invoice in processing order
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Refund, error)
}

// PaymentLogFilter defines filtering options for payment log queries
type PaymentLogFilter struct {
	shared.Filter
	Status    *PaymentLogStatus
	Unmatched *bool // true: only logs not yet resolved to an invoice
}

// PaymentLogRepository defines the interface for payment log persistence.
// The logs are owned by the gateway ingestion pipeline; the ledger reads them
// and writes back only the matched invoice reference
type PaymentLogRepository interface {
	// FindByID finds a payment log by ID
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentLog, error)

	// FindByTransactionID finds a payment log by gateway transaction ID
	FindByTransactionID(ctx context.Context, transactionID string) (*PaymentLog, error)

	// FindAll finds payment logs with filtering
	FindAll(ctx context.Context, filter PaymentLogFilter) ([]PaymentLog, error)

	// Count counts payment logs matching the filter
	Count(ctx context.Context, filter PaymentLogFilter) (int64, error)

	// Save creates or updates a payment log
	Save(ctx context.Context, log *PaymentLog) error
}

// InvoiceSequence allocates invoice numbers from a durable monotonic counter.
// This is the ledger's one global serialization point; implementations must
// increment atomically so concurrent creations never collide
type InvoiceSequence interface {
	// Next returns the next invoice number, e.g. "INV-000042"
	Next(ctx context.Context) (string, error)
}
