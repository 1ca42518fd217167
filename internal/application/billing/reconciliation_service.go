package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/domain/shared"
	"github.com/hms/backend/internal/domain/shared/valueobject"
)

// reconcileLockTTL bounds how long a webhook replay is suppressed by the
// process-level idempotency store. The durable barriers (matched_invoice_id
// on the log, the unique source_log_id index on payments) outlive it
const reconcileLockTTL = 24 * time.Hour

// ReconciliationService resolves persisted payment-gateway logs against
// invoices and records the matching payments exactly once
type ReconciliationService struct {
	invoiceRepo    billing.InvoiceRepository
	paymentRepo    billing.PaymentRepository
	logRepo        billing.PaymentLogRepository
	idempotency    shared.IdempotencyStore
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	invoiceRepo billing.InvoiceRepository,
	paymentRepo billing.PaymentRepository,
	logRepo billing.PaymentLogRepository,
	idempotency shared.IdempotencyStore,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		invoiceRepo:    invoiceRepo,
		paymentRepo:    paymentRepo,
		logRepo:        logRepo,
		idempotency:    idempotency,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// ReconcileResult reports the outcome of reconciling one payment log
type ReconcileResult struct {
	LogID            uuid.UUID        `json:"log_id"`
	InvoiceID        uuid.UUID        `json:"invoice_id"`
	PaymentID        *uuid.UUID       `json:"payment_id,omitempty"`
	AlreadyProcessed bool             `json:"already_processed"`
	Invoice          *InvoiceResponse `json:"invoice,omitempty"`
}

// PaymentLogResponse represents a payment log in API responses
type PaymentLogResponse struct {
	ID               uuid.UUID  `json:"id"`
	TransactionID    string     `json:"transaction_id"`
	InvoiceNumber    string     `json:"invoice_number,omitempty"`
	Amount           string     `json:"amount"`
	Method           string     `json:"method"`
	Status           string     `json:"status"`
	MatchedInvoiceID *uuid.UUID `json:"matched_invoice_id,omitempty"`
	MatchedAt        *time.Time `json:"matched_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// PaymentLogListFilter defines filtering options for payment log queries
type PaymentLogListFilter struct {
	Status    string `form:"status"`
	Unmatched *bool  `form:"unmatched"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

// Reconcile matches a persisted payment log against an invoice and records
// the payment. Replays of an already-matched log succeed as no-ops
func (s *ReconciliationService) Reconcile(ctx context.Context, logID, operatorID uuid.UUID) (*ReconcileResult, error) {
	log, err := s.logRepo.FindByID(ctx, logID)
	if errors.Is(err, shared.ErrNotFound) || (err == nil && log == nil) {
		return nil, shared.NewDomainError("NOT_FOUND", "Payment log not found")
	}
	if err != nil {
		return nil, err
	}

	if log.IsMatched() {
		s.logger.Info("payment log already reconciled, skipping",
			zap.String("log_id", log.ID.String()),
			zap.String("invoice_id", log.MatchedInvoiceID.String()))
		return &ReconcileResult{
			LogID:            log.ID,
			InvoiceID:        *log.MatchedInvoiceID,
			AlreadyProcessed: true,
		}, nil
	}

	if !log.Status.IsSuccess() {
		return nil, shared.NewDomainError("NOT_RECONCILABLE",
			fmt.Sprintf("Payment log %s is %s, only successful transactions are reconcilable", log.TransactionID, log.Status))
	}

	// A payment stamped with this log id means a prior run got as far as the
	// ledger write but crashed before writing the match back to the log
	existing, err := s.paymentRepo.FindBySourceLogID(ctx, log.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		log.MarkMatched(existing.InvoiceID)
		if err := s.logRepo.Save(ctx, log); err != nil {
			return nil, err
		}
		s.logger.Warn("payment log had an orphaned ledger payment, match repaired",
			zap.String("log_id", log.ID.String()),
			zap.String("payment_id", existing.ID.String()))
		return &ReconcileResult{
			LogID:            log.ID,
			InvoiceID:        existing.InvoiceID,
			PaymentID:        &existing.ID,
			AlreadyProcessed: true,
		}, nil
	}

	// Suppress concurrent webhook replays before touching the ledger
	if s.idempotency != nil {
		fresh, err := s.idempotency.MarkProcessed(ctx, reconcileKey(log.ID), reconcileLockTTL)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !fresh {
			s.logger.Info("concurrent reconciliation replay suppressed",
				zap.String("log_id", log.ID.String()))
			return &ReconcileResult{
				LogID:            log.ID,
				AlreadyProcessed: true,
			}, nil
		}
	}

	invoice, payment, err := s.recordMatchedPayment(ctx, log, operatorID)
	if err != nil {
		// Release the claim so a retry is not swallowed as already-processed
		// for the rest of the TTL. The durable barriers still hold
		s.releaseReconcileClaim(ctx, log.ID)
		return nil, err
	}
	s.publishEvents(ctx, invoice)

	s.logger.Info("payment log reconciled",
		zap.String("log_id", log.ID.String()),
		zap.String("transaction_id", log.TransactionID),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("amount", log.Amount.String()))

	return &ReconcileResult{
		LogID:     log.ID,
		InvoiceID: invoice.ID,
		PaymentID: &payment.ID,
		Invoice:   toInvoiceResponse(invoice),
	}, nil
}

// recordMatchedPayment resolves the log's invoice and writes the payment and
// the match back to the log
func (s *ReconciliationService) recordMatchedPayment(ctx context.Context, log *billing.PaymentLog, operatorID uuid.UUID) (*billing.Invoice, *billing.Payment, error) {
	invoice, err := s.resolveInvoice(ctx, log)
	if err != nil {
		return nil, nil, err
	}

	payment, err := invoice.RecordPayment(
		valueobject.NewMoneyKES(log.Amount),
		log.Method,
		operatorID,
		&log.ID,
	)
	if err != nil {
		return nil, nil, err
	}

	if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
		return nil, nil, err
	}
	if err := s.paymentRepo.Save(ctx, payment); err != nil {
		return nil, nil, err
	}

	log.MarkMatched(invoice.ID)
	if err := s.logRepo.Save(ctx, log); err != nil {
		return nil, nil, err
	}

	return invoice, payment, nil
}

// releaseReconcileClaim backs out of the replay-suppression claim after a
// failed attempt
func (s *ReconciliationService) releaseReconcileClaim(ctx context.Context, logID uuid.UUID) {
	if s.idempotency == nil {
		return
	}
	if err := s.idempotency.Release(ctx, reconcileKey(logID)); err != nil {
		s.logger.Warn("failed to release reconciliation claim, retries are blocked until the TTL expires",
			zap.String("log_id", logID.String()),
			zap.Error(err))
	}
}

// ListPaymentLogs lists gateway payment logs, typically filtered to unmatched
// ones for the manual reconciliation screen
func (s *ReconciliationService) ListPaymentLogs(ctx context.Context, filter PaymentLogListFilter) (*shared.Paginated[PaymentLogResponse], error) {
	domainFilter := billing.PaymentLogFilter{
		Filter:    shared.DefaultFilter(),
		Unmatched: filter.Unmatched,
	}
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.Status != "" {
		status := billing.PaymentLogStatus(filter.Status)
		if !status.IsValid() {
			return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Invalid payment log status %q", filter.Status))
		}
		domainFilter.Status = &status
	}

	logs, err := s.logRepo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, err
	}
	total, err := s.logRepo.Count(ctx, domainFilter)
	if err != nil {
		return nil, err
	}

	responses := make([]PaymentLogResponse, len(logs))
	for i := range logs {
		responses[i] = *toPaymentLogResponse(&logs[i])
	}

	result := shared.NewPaginated(responses, total, domainFilter.Page, domainFilter.PageSize)
	return &result, nil
}

// resolveInvoice finds the invoice a log refers to: the invoice number on the
// log first, then an invoice id embedded in the gateway payload. No
// match-by-amount guessing
func (s *ReconciliationService) resolveInvoice(ctx context.Context, log *billing.PaymentLog) (*billing.Invoice, error) {
	if log.InvoiceNumber != "" {
		invoice, err := s.invoiceRepo.FindByInvoiceNumber(ctx, log.InvoiceNumber)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if invoice != nil {
			return invoice, nil
		}
		// A stale number is a miss, not a failure; fall through to the payload id
	}

	if raw, ok := log.RawPayload["invoice_id"].(string); ok && raw != "" {
		if invoiceID, err := uuid.Parse(raw); err == nil {
			invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return nil, err
			}
			if invoice != nil {
				return invoice, nil
			}
		}
	}

	return nil, shared.NewDomainError("AMBIGUOUS_MATCH",
		fmt.Sprintf("Payment log %s does not resolve to an invoice", log.TransactionID))
}

func (s *ReconciliationService) publishEvents(ctx context.Context, invoice *billing.Invoice) {
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

func reconcileKey(logID uuid.UUID) string {
	return fmt.Sprintf("reconcile:%s", logID)
}

func toPaymentLogResponse(log *billing.PaymentLog) *PaymentLogResponse {
	return &PaymentLogResponse{
		ID:               log.ID,
		TransactionID:    log.TransactionID,
		InvoiceNumber:    log.InvoiceNumber,
		Amount:           log.Amount.String(),
		Method:           string(log.Method),
		Status:           string(log.Status),
		MatchedInvoiceID: log.MatchedInvoiceID,
		MatchedAt:        log.MatchedAt,
		CreatedAt:        log.CreatedAt,
	}
}
