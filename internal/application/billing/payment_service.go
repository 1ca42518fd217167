package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/domain/shared"
	"github.com/hms/backend/internal/domain/shared/valueobject"
)

// PaymentService records payments and refunds against invoices
type PaymentService struct {
	invoiceRepo    billing.InvoiceRepository
	paymentRepo    billing.PaymentRepository
	refundRepo     billing.RefundRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	invoiceRepo billing.InvoiceRepository,
	paymentRepo billing.PaymentRepository,
	refundRepo billing.RefundRepository,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		invoiceRepo:    invoiceRepo,
		paymentRepo:    paymentRepo,
		refundRepo:     refundRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// RecordPaymentRequest represents a cashier-entered payment
type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"method" binding:"required"`
}

// RefundRequest represents a refund against prior payments
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason string          `json:"reason" binding:"required"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID          uuid.UUID       `json:"id"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	RecordedBy  uuid.UUID       `json:"recorded_by"`
	RecordedAt  time.Time       `json:"recorded_at"`
	SourceLogID *uuid.UUID      `json:"source_log_id,omitempty"`
	Invoice     *InvoiceResponse `json:"invoice,omitempty"`
}

// RefundResponse represents a refund in API responses
type RefundResponse struct {
	ID          uuid.UUID        `json:"id"`
	InvoiceID   uuid.UUID        `json:"invoice_id"`
	Amount      decimal.Decimal  `json:"amount"`
	Reason      string           `json:"reason"`
	ProcessedBy uuid.UUID        `json:"processed_by"`
	CreatedAt   time.Time        `json:"created_at"`
	Invoice     *InvoiceResponse `json:"invoice,omitempty"`
}

// PaymentHistoryResponse lists all money movement for one invoice
type PaymentHistoryResponse struct {
	InvoiceID uuid.UUID         `json:"invoice_id"`
	Payments  []PaymentResponse `json:"payments"`
	Refunds   []RefundResponse  `json:"refunds"`
}

// RecordPayment applies a payment to an invoice and appends the payment record
func (s *PaymentService) RecordPayment(ctx context.Context, invoiceID uuid.UUID, req RecordPaymentRequest, recordedBy uuid.UUID) (*PaymentResponse, error) {
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	payment, err := invoice.RecordPayment(
		valueobject.NewMoneyKES(req.Amount),
		billing.PaymentMethod(req.Method),
		recordedBy,
		nil,
	)
	if err != nil {
		return nil, err
	}

	if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Save(ctx, payment); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, invoice)

	s.logger.Info("payment recorded",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", payment.Amount.String()),
		zap.String("method", string(payment.Method)),
		zap.String("status", string(invoice.Status)))

	resp := toPaymentResponse(payment)
	resp.Invoice = toInvoiceResponse(invoice)
	return resp, nil
}

// Refund reverses previously paid money on an invoice
func (s *PaymentService) Refund(ctx context.Context, invoiceID uuid.UUID, req RefundRequest, processedBy uuid.UUID) (*RefundResponse, error) {
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	refund, err := invoice.Refund(valueobject.NewMoneyKES(req.Amount), req.Reason, processedBy)
	if err != nil {
		return nil, err
	}

	if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
		return nil, err
	}
	if err := s.refundRepo.Save(ctx, refund); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, invoice)

	s.logger.Info("refund processed",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("refund_id", refund.ID.String()),
		zap.String("amount", refund.Amount.String()),
		zap.String("status", string(invoice.Status)))

	resp := toRefundResponse(refund)
	resp.Invoice = toInvoiceResponse(invoice)
	return resp, nil
}

// GetPaymentHistory returns every payment and refund recorded for an invoice
func (s *PaymentService) GetPaymentHistory(ctx context.Context, invoiceID uuid.UUID) (*PaymentHistoryResponse, error) {
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	payments, err := s.paymentRepo.FindByInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	refunds, err := s.refundRepo.FindByInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}

	history := &PaymentHistoryResponse{
		InvoiceID: invoice.ID,
		Payments:  make([]PaymentResponse, len(payments)),
		Refunds:   make([]RefundResponse, len(refunds)),
	}
	for i := range payments {
		history.Payments[i] = *toPaymentResponse(&payments[i])
	}
	for i := range refunds {
		history.Refunds[i] = *toRefundResponse(&refunds[i])
	}
	return history, nil
}

func (s *PaymentService) findInvoice(ctx context.Context, invoiceID uuid.UUID) (*billing.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if errors.Is(err, shared.ErrNotFound) || (err == nil && invoice == nil) {
		return nil, shared.NewDomainError("NOT_FOUND", "Invoice not found")
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *PaymentService) publishEvents(ctx context.Context, invoice *billing.Invoice) {
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

func toPaymentResponse(p *billing.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:          p.ID,
		InvoiceID:   p.InvoiceID,
		Amount:      p.Amount,
		Method:      string(p.Method),
		RecordedBy:  p.RecordedBy,
		RecordedAt:  p.RecordedAt,
		SourceLogID: p.SourceLogID,
	}
}

func toRefundResponse(r *billing.Refund) *RefundResponse {
	return &RefundResponse{
		ID:          r.ID,
		InvoiceID:   r.InvoiceID,
		Amount:      r.Amount,
		Reason:      r.Reason,
		ProcessedBy: r.ProcessedBy,
		CreatedAt:   r.CreatedAt,
	}
}
