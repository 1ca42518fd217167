package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/domain/shared"
)

// InvoiceService provides application-level invoice ledger operations
type InvoiceService struct {
	invoiceRepo    billing.InvoiceRepository
	paymentRepo    billing.PaymentRepository
	refundRepo     billing.RefundRepository
	sequence       billing.InvoiceSequence
	patients       billing.PatientDirectory
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo billing.InvoiceRepository,
	paymentRepo billing.PaymentRepository,
	refundRepo billing.RefundRepository,
	sequence billing.InvoiceSequence,
	patients billing.PatientDirectory,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{
		invoiceRepo:    invoiceRepo,
		paymentRepo:    paymentRepo,
		refundRepo:     refundRepo,
		sequence:       sequence,
		patients:       patients,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// LineItemInput represents one charge in a create or update request
type LineItemInput struct {
	Description string          `json:"description" binding:"required"`
	Category    string          `json:"category"`
	Date        *time.Time      `json:"date"`
	Qty         int             `json:"qty"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Less        decimal.Decimal `json:"less"`
}

// CreateInvoiceRequest represents a create-or-merge request
type CreateInvoiceRequest struct {
	PatientID uuid.UUID       `json:"patient_id" binding:"required"`
	Type      string          `json:"type" binding:"required"`
	Items     []LineItemInput `json:"items" binding:"required,min=1,dive"`
	Discount  decimal.Decimal `json:"discount"`
}

// UpdateLineItemsRequest replaces the invoice's line items wholesale
type UpdateLineItemsRequest struct {
	Items    []LineItemInput  `json:"items" binding:"required,min=1,dive"`
	Discount *decimal.Decimal `json:"discount"`
}

// LineItemResponse represents a line item in API responses
type LineItemResponse struct {
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Date        time.Time       `json:"date"`
	Qty         int             `json:"qty"`
	Amount      decimal.Decimal `json:"amount"`
	Less        decimal.Decimal `json:"less"`
	Net         decimal.Decimal `json:"net"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID            uuid.UUID          `json:"id"`
	InvoiceNumber string             `json:"invoice_number"`
	PatientID     uuid.UUID          `json:"patient_id"`
	Type          string             `json:"type"`
	Status        string             `json:"status"`
	LineItems     []LineItemResponse `json:"line_items"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	Discount      decimal.Decimal    `json:"discount"`
	TotalPayable  decimal.Decimal    `json:"total_payable"`
	AmountPaid    decimal.Decimal    `json:"amount_paid"`
	Outstanding   decimal.Decimal    `json:"outstanding"`
	Merged        bool               `json:"merged,omitempty"`
	LockedBy      *uuid.UUID         `json:"locked_by,omitempty"`
	LockedAt      *time.Time         `json:"locked_at,omitempty"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
	RefundedAt    *time.Time         `json:"refunded_at,omitempty"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
	CancelReason  string             `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Version       int                `json:"version"`
}

// InvoiceListFilter defines filtering options for invoice list queries
type InvoiceListFilter struct {
	PatientID *uuid.UUID `form:"patient_id"`
	Status    string     `form:"status"`
	Type      string     `form:"type"`
	FromDate  *time.Time `form:"from_date"`
	ToDate    *time.Time `form:"to_date"`
	Page      int        `form:"page"`
	PageSize  int        `form:"page_size"`
}

// CreateOrMergeInvoice merges the charges into the oldest open invoice for the
// same patient and type, or creates a new invoice with the next number from
// the durable sequence
func (s *InvoiceService) CreateOrMergeInvoice(ctx context.Context, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	invoiceType := billing.InvoiceType(req.Type)
	if !invoiceType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Invalid invoice type %q", req.Type))
	}

	exists, err := s.patients.Exists(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve patient: %w", err)
	}
	if !exists {
		return nil, shared.NewDomainError("NOT_FOUND", "Patient not found")
	}

	items, err := buildLineItems(req.Items)
	if err != nil {
		return nil, err
	}

	open, err := s.invoiceRepo.FindPendingByPatientAndType(ctx, req.PatientID, invoiceType)
	if err != nil {
		return nil, fmt.Errorf("failed to find open invoices: %w", err)
	}

	if len(open) > 0 {
		if len(open) > 1 {
			// Merge key should never match more than one open invoice
			s.logger.Warn("multiple open invoices match merge key, merging into oldest",
				zap.String("patient_id", req.PatientID.String()),
				zap.String("invoice_type", string(invoiceType)),
				zap.Int("matches", len(open)))
		}
		target := &open[0]
		if err := target.AppendLineItems(items); err != nil {
			return nil, err
		}
		if req.Discount.IsPositive() {
			if err := target.SetInvoiceDiscount(target.InvoiceDiscount.Add(req.Discount)); err != nil {
				return nil, err
			}
		}
		if err := s.invoiceRepo.SaveWithLock(ctx, target); err != nil {
			return nil, err
		}
		s.publishEvents(ctx, target)

		s.logger.Info("charges merged into open invoice",
			zap.String("invoice_id", target.ID.String()),
			zap.String("invoice_number", target.InvoiceNumber),
			zap.Int("items_added", len(items)))

		resp := toInvoiceResponse(target)
		resp.Merged = true
		return resp, nil
	}

	invoiceNumber, err := s.sequence.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	invoice, err := billing.NewInvoice(invoiceNumber, req.PatientID, invoiceType, items)
	if err != nil {
		return nil, err
	}
	if req.Discount.IsPositive() {
		if err := invoice.SetInvoiceDiscount(req.Discount); err != nil {
			return nil, err
		}
	}

	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}
	s.publishEvents(ctx, invoice)

	s.logger.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("patient_id", req.PatientID.String()),
		zap.String("total_payable", invoice.TotalPayable.String()))

	return toInvoiceResponse(invoice), nil
}

// UpdateLineItems replaces the line items of an open invoice
func (s *InvoiceService) UpdateLineItems(ctx context.Context, invoiceID uuid.UUID, req UpdateLineItemsRequest) (*InvoiceResponse, error) {
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	items, err := buildLineItems(req.Items)
	if err != nil {
		return nil, err
	}

	if err := invoice.ReplaceLineItems(items); err != nil {
		return nil, err
	}
	if req.Discount != nil {
		if err := invoice.SetInvoiceDiscount(*req.Discount); err != nil {
			return nil, err
		}
	}

	if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, invoice)

	return toInvoiceResponse(invoice), nil
}

// Finalize locks the invoice's line items. Finalizing an already finalized or
// paid invoice succeeds without changing anything
func (s *InvoiceService) Finalize(ctx context.Context, invoiceID, lockedBy uuid.UUID) (*InvoiceResponse, error) {
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	changed, err := invoice.Finalize(lockedBy)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
			return nil, err
		}
		s.publishEvents(ctx, invoice)

		s.logger.Info("invoice finalized",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.String("locked_by", lockedBy.String()))
	}

	return toInvoiceResponse(invoice), nil
}

// Cancel voids an unpaid invoice
func (s *InvoiceService) Cancel(ctx context.Context, invoiceID uuid.UUID, reason string) (*InvoiceResponse, error) {
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if err := invoice.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, invoice)

	s.logger.Info("invoice cancelled",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("reason", reason))

	return toInvoiceResponse(invoice), nil
}

// GetInvoice gets an invoice by ID
func (s *InvoiceService) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*InvoiceResponse, error) {
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return toInvoiceResponse(invoice), nil
}

// ListInvoices lists invoices with filtering and pagination
func (s *InvoiceService) ListInvoices(ctx context.Context, filter InvoiceListFilter) (*shared.Paginated[InvoiceResponse], error) {
	domainFilter := billing.InvoiceFilter{
		Filter:    shared.DefaultFilter(),
		PatientID: filter.PatientID,
		FromDate:  filter.FromDate,
		ToDate:    filter.ToDate,
	}
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.Status != "" {
		status := billing.InvoiceStatus(filter.Status)
		if !status.IsValid() {
			return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Invalid invoice status %q", filter.Status))
		}
		domainFilter.Status = &status
	}
	if filter.Type != "" {
		invoiceType := billing.InvoiceType(filter.Type)
		if !invoiceType.IsValid() {
			return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Invalid invoice type %q", filter.Type))
		}
		domainFilter.Type = &invoiceType
	}

	invoices, err := s.invoiceRepo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, err
	}
	total, err := s.invoiceRepo.Count(ctx, domainFilter)
	if err != nil {
		return nil, err
	}

	responses := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		responses[i] = *toInvoiceResponse(&invoices[i])
	}

	result := shared.NewPaginated(responses, total, domainFilter.Page, domainFilter.PageSize)
	return &result, nil
}

func (s *InvoiceService) findInvoice(ctx context.Context, invoiceID uuid.UUID) (*billing.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if errors.Is(err, shared.ErrNotFound) || (err == nil && invoice == nil) {
		return nil, shared.NewDomainError("NOT_FOUND", "Invoice not found")
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// publishEvents flushes the aggregate's pending events. Publishing failures
// are logged, never surfaced: the ledger write already succeeded
func (s *InvoiceService) publishEvents(ctx context.Context, invoice *billing.Invoice) {
	events := invoice.GetDomainEvents()
	if len(events) == 0 || s.eventPublisher == nil {
		invoice.ClearDomainEvents()
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish invoice events",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err))
	}
	invoice.ClearDomainEvents()
}

func buildLineItems(inputs []LineItemInput) ([]billing.LineItem, error) {
	if len(inputs) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "At least one line item is required")
	}
	items := make([]billing.LineItem, 0, len(inputs))
	for _, in := range inputs {
		date := time.Time{}
		if in.Date != nil {
			date = *in.Date
		}
		item, err := billing.NewLineItem(in.Description, in.Category, date, in.Qty, in.Amount, in.Less)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func toInvoiceResponse(inv *billing.Invoice) *InvoiceResponse {
	items := make([]LineItemResponse, len(inv.LineItems))
	for i, li := range inv.LineItems {
		items[i] = LineItemResponse{
			Description: li.Description,
			Category:    li.Category,
			Date:        li.Date,
			Qty:         li.Qty,
			Amount:      li.Amount,
			Less:        li.Less,
			Net:         li.Net(),
		}
	}
	return &InvoiceResponse{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		PatientID:     inv.PatientID,
		Type:          string(inv.Type),
		Status:        string(inv.Status),
		LineItems:     items,
		Subtotal:      inv.Subtotal,
		Discount:      inv.Discount,
		TotalPayable:  inv.TotalPayable,
		AmountPaid:    inv.AmountPaid,
		Outstanding:   inv.Outstanding(),
		LockedBy:      inv.LockedBy,
		LockedAt:      inv.LockedAt,
		PaidAt:        inv.PaidAt,
		RefundedAt:    inv.RefundedAt,
		CancelledAt:   inv.CancelledAt,
		CancelReason:  inv.CancelReason,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
		Version:       inv.GetVersion(),
	}
}
