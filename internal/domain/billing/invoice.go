package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hms/backend/internal/domain/shared"
	"github.com/hms/backend/internal/domain/shared/valueobject"
)

// InvoiceStatus represents the lifecycle status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"   // Open, line items editable
	InvoiceStatusFinalized InvoiceStatus = "FINALIZED" // Locked, line items immutable
	InvoiceStatusPaid      InvoiceStatus = "PAID"      // amount_paid >= total_payable
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED" // Voided before any payment (terminal)
	InvoiceStatusRefunded  InvoiceStatus = "REFUNDED"  // Fully refunded (terminal)
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusFinalized, InvoiceStatusPaid,
		InvoiceStatusCancelled, InvoiceStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the invoice is in a terminal state
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusCancelled || s == InvoiceStatusRefunded
}

// CanRecordPayment returns true if payments can be recorded in this status.
// A paid invoice still accepts payments; the excess is retained as a credit.
func (s InvoiceStatus) CanRecordPayment() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusFinalized || s == InvoiceStatusPaid
}

// CanEditLineItems returns true if line items may be replaced in this status
func (s InvoiceStatus) CanEditLineItems() bool {
	return s == InvoiceStatusPending
}

// CanRefund returns true if refunds are allowed in this status. Refunds run
// against settled invoices only; a PENDING invoice with payments has to be
// finalized before money moves back out
func (s InvoiceStatus) CanRefund() bool {
	return s == InvoiceStatusFinalized || s == InvoiceStatusPaid
}

// InvoiceType categorizes what an invoice bills for; used as the merge key
// together with the patient id
type InvoiceType string

const (
	InvoiceTypeTreatment    InvoiceType = "TREATMENT"
	InvoiceTypePrescription InvoiceType = "PRESCRIPTION"
	InvoiceTypeLab          InvoiceType = "LAB"
	InvoiceTypeAdmission    InvoiceType = "ADMISSION"
	InvoiceTypeMisc         InvoiceType = "MISC"
)

// IsValid checks if the invoice type is valid
func (t InvoiceType) IsValid() bool {
	switch t {
	case InvoiceTypeTreatment, InvoiceTypePrescription, InvoiceTypeLab,
		InvoiceTypeAdmission, InvoiceTypeMisc:
		return true
	}
	return false
}

// LineItem is one priced, described charge on an invoice.
// Line items have no identity of their own; they are value objects owned by
// the invoice and stored as JSONB
type LineItem struct {
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Date        time.Time       `json:"date"`
	Qty         int             `json:"qty"`
	Amount      decimal.Decimal `json:"amount"`
	Less        decimal.Decimal `json:"less"`
}

// NewLineItem creates a validated line item. Qty defaults to 1 when zero.
func NewLineItem(description, category string, date time.Time, qty int, amount, less decimal.Decimal) (LineItem, error) {
	if description == "" {
		return LineItem{}, shared.NewDomainError("VALIDATION_ERROR", "Line item description cannot be empty")
	}
	if qty == 0 {
		qty = 1
	}
	if qty < 1 {
		return LineItem{}, shared.NewDomainError("VALIDATION_ERROR", "Line item qty must be at least 1")
	}
	if amount.IsNegative() {
		return LineItem{}, shared.NewDomainError("VALIDATION_ERROR", "Line item amount cannot be negative")
	}
	gross := amount.Mul(decimal.NewFromInt(int64(qty)))
	if less.IsNegative() || less.GreaterThan(gross) {
		return LineItem{}, shared.NewDomainError("VALIDATION_ERROR", "Line item discount must be between 0 and the line total")
	}
	if date.IsZero() {
		date = time.Now()
	}
	return LineItem{
		Description: description,
		Category:    category,
		Date:        date,
		Qty:         qty,
		Amount:      amount,
		Less:        less,
	}, nil
}

// Gross returns amount * qty before discount
func (li LineItem) Gross() decimal.Decimal {
	return li.Amount.Mul(decimal.NewFromInt(int64(li.Qty)))
}

// Net returns the line total after the per-line discount
func (li LineItem) Net() decimal.Decimal {
	return li.Gross().Sub(li.Less)
}

// LineItems is a slice of LineItem that implements GORM Scanner/Valuer for JSONB storage
type LineItems []LineItem

// Value implements driver.Valuer interface for GORM to store as JSONB
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (l *LineItems) Scan(value interface{}) error {
	if value == nil {
		*l = LineItems{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan LineItems: unsupported type")
	}

	if len(bytes) == 0 {
		*l = LineItems{}
		return nil
	}

	return json.Unmarshal(bytes, l)
}

// Subtotal returns the sum of amount*qty across all line items
func (l LineItems) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range l {
		total = total.Add(li.Gross())
	}
	return total
}

// TotalLess returns the sum of per-line discounts
func (l LineItems) TotalLess() decimal.Decimal {
	total := decimal.Zero
	for _, li := range l {
		total = total.Add(li.Less)
	}
	return total
}

// Invoice is the aggregate root of the billing ledger. It tracks charges for
// one patient encounter category, the payments applied against them and the
// lifecycle of the bill from draft to settlement
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber string        `json:"invoice_number"`
	PatientID     uuid.UUID     `json:"patient_id"`
	Type          InvoiceType   `json:"type"`
	LineItems     LineItems     `json:"line_items"`
	// InvoiceDiscount is the invoice-level discount on top of per-line discounts
	InvoiceDiscount decimal.Decimal `json:"invoice_discount"`
	// Subtotal, Discount and TotalPayable are derived from the line items and
	// recomputed on every mutation, never edited directly
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	TotalPayable decimal.Decimal `json:"total_payable"`
	AmountPaid   decimal.Decimal `json:"amount_paid"`
	Status       InvoiceStatus   `json:"status"`
	LockedBy     *uuid.UUID      `json:"locked_by,omitempty"`
	LockedAt     *time.Time      `json:"locked_at,omitempty"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	RefundedAt   *time.Time      `json:"refunded_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason string          `json:"cancel_reason,omitempty"`
}

// NewInvoice creates a new pending invoice with at least one line item.
// The invoice number must come from the durable sequence; it is never derived here.
func NewInvoice(invoiceNumber string, patientID uuid.UUID, invoiceType InvoiceType, items []LineItem) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice number cannot be empty")
	}
	if patientID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Patient ID cannot be empty")
	}
	if !invoiceType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Invalid invoice type %q", invoiceType))
	}
	if len(items) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice requires at least one line item")
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     invoiceNumber,
		PatientID:         patientID,
		Type:              invoiceType,
		LineItems:         append(LineItems{}, items...),
		InvoiceDiscount:   decimal.Zero,
		AmountPaid:        decimal.Zero,
		Status:            InvoiceStatusPending,
	}
	if err := inv.recomputeTotals(); err != nil {
		return nil, err
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

// recomputeTotals rederives subtotal, discount and total payable from the
// line items. Enforces discount <= subtotal so total payable never goes negative.
func (inv *Invoice) recomputeTotals() error {
	subtotal := inv.LineItems.Subtotal()
	discount := inv.LineItems.TotalLess().Add(inv.InvoiceDiscount)
	if discount.GreaterThan(subtotal) {
		return shared.NewDomainError("VALIDATION_ERROR", "Discount cannot exceed subtotal")
	}
	inv.Subtotal = subtotal
	inv.Discount = discount
	inv.TotalPayable = subtotal.Sub(discount)
	return nil
}

// AppendLineItems adds line items to a pending invoice (merge-on-create path)
func (inv *Invoice) AppendLineItems(items []LineItem) error {
	if !inv.Status.CanEditLineItems() {
		return lockError(inv.Status)
	}
	if len(items) == 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "No line items to append")
	}

	inv.LineItems = append(inv.LineItems, items...)
	if err := inv.recomputeTotals(); err != nil {
		return err
	}

	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()
	inv.AddDomainEvent(NewInvoiceLineItemsChangedEvent(inv))

	return nil
}

// ReplaceLineItems replaces the line-item array wholesale (last-write-wins)
func (inv *Invoice) ReplaceLineItems(items []LineItem) error {
	if !inv.Status.CanEditLineItems() {
		return lockError(inv.Status)
	}
	if len(items) == 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "Invoice requires at least one line item")
	}

	inv.LineItems = append(LineItems{}, items...)
	if err := inv.recomputeTotals(); err != nil {
		return err
	}

	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()
	inv.AddDomainEvent(NewInvoiceLineItemsChangedEvent(inv))

	return nil
}

// SetInvoiceDiscount sets the invoice-level discount while the invoice is open
func (inv *Invoice) SetInvoiceDiscount(discount decimal.Decimal) error {
	if !inv.Status.CanEditLineItems() {
		return lockError(inv.Status)
	}
	if discount.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR", "Invoice discount cannot be negative")
	}

	previous := inv.InvoiceDiscount
	inv.InvoiceDiscount = discount
	if err := inv.recomputeTotals(); err != nil {
		inv.InvoiceDiscount = previous
		return err
	}

	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()

	return nil
}

// RecordPayment applies a payment and returns the append-only Payment record.
// Overpayment is accepted and retained as a credit on the invoice.
func (inv *Invoice) RecordPayment(amount valueobject.Money, method PaymentMethod, recordedBy uuid.UUID, sourceLogID *uuid.UUID) (*Payment, error) {
	if !inv.Status.CanRecordPayment() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot record payment on %s invoice", inv.Status))
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Invalid payment method %q", method))
	}

	payment := NewPayment(inv.ID, amount.Amount(), method, recordedBy, sourceLogID)

	inv.AmountPaid = inv.AmountPaid.Add(amount.Amount())
	if inv.Status != InvoiceStatusPaid && inv.AmountPaid.GreaterThanOrEqual(inv.TotalPayable) {
		now := time.Now()
		inv.Status = InvoiceStatusPaid
		inv.PaidAt = &now
		inv.AddDomainEvent(NewInvoicePaidEvent(inv))
	}

	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()
	inv.AddDomainEvent(NewPaymentRecordedEvent(inv, payment))

	return payment, nil
}

// Finalize locks the invoice's line items. Re-finalizing a finalized or paid
// invoice is a no-op, not an error, so discharge replay stays safe.
// Returns true when the invoice actually transitioned.
func (inv *Invoice) Finalize(lockedBy uuid.UUID) (bool, error) {
	switch inv.Status {
	case InvoiceStatusFinalized, InvoiceStatusPaid:
		return false, nil
	case InvoiceStatusCancelled, InvoiceStatusRefunded:
		return false, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot finalize %s invoice", inv.Status))
	}

	now := time.Now()
	inv.Status = InvoiceStatusFinalized
	inv.LockedBy = &lockedBy
	inv.LockedAt = &now
	inv.UpdatedAt = now
	inv.IncrementVersion()
	inv.AddDomainEvent(NewInvoiceFinalizedEvent(inv))

	return true, nil
}

// Cancel voids the invoice. Only reachable from pending/finalized with no
// payments; invoices with payments must be refunded first.
func (inv *Invoice) Cancel(reason string) error {
	if inv.Status != InvoiceStatusPending && inv.Status != InvoiceStatusFinalized {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel %s invoice", inv.Status))
	}
	if inv.AmountPaid.IsPositive() {
		return shared.NewDomainError("INVALID_STATE", "Cannot cancel an invoice with recorded payments; refund first")
	}
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Cancel reason is required")
	}

	now := time.Now()
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &now
	inv.CancelReason = reason
	inv.UpdatedAt = now
	inv.IncrementVersion()
	inv.AddDomainEvent(NewInvoiceCancelledEvent(inv))

	return nil
}

// Refund reverses paid money and returns the Refund record. A refund that
// brings amount_paid to zero and equals the full previously paid total moves
// the invoice to REFUNDED; a partial refund leaves the status unchanged.
func (inv *Invoice) Refund(amount valueobject.Money, reason string, processedBy uuid.UUID) (*Refund, error) {
	if !inv.Status.CanRefund() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot refund %s invoice", inv.Status))
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Refund amount must be positive")
	}
	if amount.Amount().GreaterThan(inv.AmountPaid) {
		return nil, shared.NewDomainError("VALIDATION_ERROR",
			fmt.Sprintf("Refund amount %s exceeds amount paid %s", amount.StringFixed(2), inv.AmountPaid.StringFixed(2)))
	}
	if reason == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Refund reason is required")
	}

	refund := NewRefund(inv.ID, amount.Amount(), reason, processedBy)

	inv.AmountPaid = inv.AmountPaid.Sub(amount.Amount())
	if inv.AmountPaid.IsZero() {
		now := time.Now()
		inv.Status = InvoiceStatusRefunded
		inv.RefundedAt = &now
		inv.AddDomainEvent(NewInvoiceRefundedEvent(inv))
	}

	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()
	inv.AddDomainEvent(NewRefundProcessedEvent(inv, refund))

	return refund, nil
}

// Outstanding returns the unpaid balance, floored at zero when overpaid
func (inv *Invoice) Outstanding() decimal.Decimal {
	outstanding := inv.TotalPayable.Sub(inv.AmountPaid)
	if outstanding.IsNegative() {
		return decimal.Zero
	}
	return outstanding
}

// IsPending returns true if the invoice is still open for edits
func (inv *Invoice) IsPending() bool {
	return inv.Status == InvoiceStatusPending
}

// IsPaid returns true if the invoice is fully paid
func (inv *Invoice) IsPaid() bool {
	return inv.Status == InvoiceStatusPaid
}

// IsLocked returns true once line items can no longer change
func (inv *Invoice) IsLocked() bool {
	return !inv.Status.CanEditLineItems()
}

func lockError(status InvoiceStatus) error {
	if status == InvoiceStatusPending {
		return nil
	}
	return shared.NewDomainError("INVOICE_LOCKED", fmt.Sprintf("Line items cannot be modified on %s invoice", status))
}
