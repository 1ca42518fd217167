package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/domain/shared"
)

// DischargeService folds a patient's accumulated stay charges into their
// admission invoice and finalizes it so the bill is fixed at discharge time.
// It serves both the HTTP discharge endpoint and PatientDischarged events
// from the ward module
type DischargeService struct {
	invoiceService *InvoiceService
	logger         *zap.Logger
}

// NewDischargeService creates a new DischargeService
func NewDischargeService(invoiceService *InvoiceService, logger *zap.Logger) *DischargeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DischargeService{
		invoiceService: invoiceService,
		logger:         logger,
	}
}

// DischargeRequest represents a discharge billing request
type DischargeRequest struct {
	PatientID uuid.UUID       `json:"patient_id" binding:"required"`
	Charges   []LineItemInput `json:"charges" binding:"required,min=1,dive"`
}

// Discharge merges the discharge charges into the patient's open admission
// invoice (or opens one) and finalizes it. Replaying a discharge re-finalizes
// a finalized invoice, which is a no-op
func (s *DischargeService) Discharge(ctx context.Context, req DischargeRequest, dischargedBy uuid.UUID) (*InvoiceResponse, error) {
	invoice, err := s.invoiceService.CreateOrMergeInvoice(ctx, CreateInvoiceRequest{
		PatientID: req.PatientID,
		Type:      string(billing.InvoiceTypeAdmission),
		Items:     req.Charges,
	})
	if err != nil {
		return nil, err
	}

	finalized, err := s.invoiceService.Finalize(ctx, invoice.ID, dischargedBy)
	if err != nil {
		return nil, err
	}

	s.logger.Info("discharge billed",
		zap.String("patient_id", req.PatientID.String()),
		zap.String("invoice_id", finalized.ID.String()),
		zap.String("invoice_number", finalized.InvoiceNumber),
		zap.String("total_payable", finalized.TotalPayable.String()),
		zap.Int("charges", len(req.Charges)))

	return finalized, nil
}

// EventTypes returns the event types this handler is interested in
func (s *DischargeService) EventTypes() []string {
	return []string{billing.EventTypePatientDischarged}
}

// Handle processes a PatientDischargedEvent from the ward module
func (s *DischargeService) Handle(ctx context.Context, event shared.DomainEvent) error {
	discharged, ok := event.(*billing.PatientDischargedEvent)
	if !ok {
		s.logger.Error("unexpected event type",
			zap.String("expected", billing.EventTypePatientDischarged),
			zap.String("actual", event.EventType()))
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			billing.EventTypePatientDischarged, event.EventType())
	}

	if len(discharged.Charges) == 0 {
		s.logger.Info("discharge event carried no charges, nothing to bill",
			zap.String("patient_id", discharged.PatientID.String()))
		return nil
	}

	charges := make([]LineItemInput, len(discharged.Charges))
	for i, c := range discharged.Charges {
		charges[i] = LineItemInput{
			Description: c.Description,
			Category:    c.Category,
			Qty:         c.Qty,
			Amount:      c.Amount,
		}
	}

	_, err := s.Discharge(ctx, DischargeRequest{
		PatientID: discharged.PatientID,
		Charges:   charges,
	}, discharged.DischargedBy)
	if err != nil {
		return fmt.Errorf("failed to bill discharge: %w", err)
	}
	return nil
}

// Ensure DischargeService implements shared.EventHandler
var _ shared.EventHandler = (*DischargeService)(nil)
