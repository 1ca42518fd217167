package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/domain/shared"
)

func newReconciliationFixture() (*ReconciliationService, *MockInvoiceRepository, *MockPaymentRepository, *MockPaymentLogRepository, *mapIdempotencyStore, *capturingPublisher) {
	invoiceRepo := new(MockInvoiceRepository)
	paymentRepo := new(MockPaymentRepository)
	logRepo := new(MockPaymentLogRepository)
	store := newMapIdempotencyStore()
	publisher := &capturingPublisher{}
	svc := NewReconciliationService(invoiceRepo, paymentRepo, logRepo, store, publisher, newTestLogger())
	return svc, invoiceRepo, paymentRepo, logRepo, store, publisher
}

func newSuccessLog(t *testing.T, invoiceNumber string, amount float64) *billing.PaymentLog {
	log, err := billing.NewPaymentLog(
		"QJL7XK29PM",
		invoiceNumber,
		decimal.NewFromFloat(amount),
		billing.PaymentMethodMpesa,
		billing.PaymentLogStatusSuccess,
		billing.RawPayload{"PhoneNumber": "254712345678"},
	)
	require.NoError(t, err)
	return log
}

func TestReconciliationService_Reconcile(t *testing.T) {
	ctx := context.Background()
	patientID := uuid.New()
	operator := uuid.New()

	t.Run("matches by invoice number and records the payment", func(t *testing.T) {
		svc, invoiceRepo, paymentRepo, logRepo, _, publisher := newReconciliationFixture()

		inv := newDomainInvoice(t, "INV-000200", patientID, billing.InvoiceTypeTreatment)
		log := newSuccessLog(t, "INV-000200", 500.00)

		logRepo.On("FindByID", ctx, log.ID).Return(log, nil)
		paymentRepo.On("FindBySourceLogID", ctx, log.ID).Return(nil, nil)
		invoiceRepo.On("FindByInvoiceNumber", ctx, "INV-000200").Return(inv, nil)
		invoiceRepo.On("SaveWithLock", ctx, inv).Return(nil)
		paymentRepo.On("Save", ctx, mock.AnythingOfType("*billing.Payment")).Return(nil)
		logRepo.On("Save", ctx, log).Return(nil)

		result, err := svc.Reconcile(ctx, log.ID, operator)
		require.NoError(t, err)

		assert.False(t, result.AlreadyProcessed)
		assert.Equal(t, inv.ID, result.InvoiceID)
		require.NotNil(t, result.PaymentID)
		assert.True(t, log.IsMatched())
		assert.Equal(t, inv.ID, *log.MatchedInvoiceID)
		assert.Equal(t, string(billing.InvoiceStatusPaid), result.Invoice.Status)
		assert.Contains(t, publisher.eventTypes(), billing.EventTypeInvoicePaid)

		// the recorded payment carries the log id as its idempotency stamp
		savedPayment := paymentRepo.Calls[1].Arguments.Get(1).(*billing.Payment)
		require.NotNil(t, savedPayment.SourceLogID)
		assert.Equal(t, log.ID, *savedPayment.SourceLogID)
		assert.Equal(t, billing.PaymentMethodMpesa, savedPayment.Method)
	})

	t.Run("falls back to invoice id in the payload", func(t *testing.T) {
		svc, invoiceRepo, paymentRepo, logRepo, _, _ := newReconciliationFixture()

		inv := newDomainInvoice(t, "INV-000201", patientID, billing.InvoiceTypeTreatment)
		log, err := billing.NewPaymentLog("TX-77", "", decimal.NewFromFloat(100.00),
			billing.PaymentMethodMpesa, billing.PaymentLogStatusSuccess,
			billing.RawPayload{"invoice_id": inv.ID.String()})
		require.NoError(t, err)

		logRepo.On("FindByID", ctx, log.ID).Return(log, nil)
		paymentRepo.On("FindBySourceLogID", ctx, log.ID).Return(nil, nil)
		invoiceRepo.On("FindByID", ctx, inv.ID).Return(inv, nil)
		invoiceRepo.On("SaveWithLock", ctx, inv).Return(nil)
		paymentRepo.On("Save", ctx, mock.AnythingOfType("*billing.Payment")).Return(nil)
		logRepo.On("Save", ctx, log).Return(nil)

		result, err := svc.Reconcile(ctx, log.ID, operator)
		require.NoError(t, err)
		assert.Equal(t, inv.ID, result.InvoiceID)
	})

	t.Run("already matched log is a no-op", func(t *testing.T) {
		svc, invoiceRepo, paymentRepo, logRepo, _, _ := newReconciliationFixture()

		matchedInvoice := uuid.New()
		log := newSuccessLog(t, "INV-000202", 500.00)
		log.MarkMatched(matchedInvoice)

		logRepo.On("FindByID", ctx, log.ID).Return(log, nil)

		result, err := svc.Reconcile(ctx, log.ID, operator)
		require.NoError(t, err)

		assert.True(t, result.AlreadyProcessed)
		assert.Equal(t, matchedInvoice, result.InvoiceID)
		invoiceRepo.AssertNotCalled(t, "FindByInvoiceNumber", ctx, mock.Anything)
		paymentRepo.AssertNotCalled(t, "Save", ctx, mock.Anything)
	})

	t.Run("repairs a match interrupted after the ledger write", func(t *testing.T) {
		svc, _, paymentRepo, logRepo, _, _ := newReconciliationFixture()

		log := newSuccessLog(t, "INV-000203", 500.00)
		invID := uuid.New()
		orphan := billing.NewPayment(invID, decimal.NewFromFloat(500.00), billing.PaymentMethodMpesa, operator, &log.ID)

		logRepo.On("FindByID", ctx, log.ID).Return(log, nil)
		paymentRepo.On("FindBySourceLogID", ctx, log.ID).Return(orphan, nil)
		logRepo.On("Save", ctx, log).Return(nil)

		result, err := svc.Reconcile(ctx, log.ID, operator)
		require.NoError(t, err)

		assert.True(t, result.AlreadyProcessed)
		assert.Equal(t, invID, result.InvoiceID)
		assert.True(t, log.IsMatched())
	})

	t.Run("fails for a failed gateway transaction", func(t *testing.T) {
		svc, _, _, logRepo, _, _ := newReconciliationFixture()

		log, err := billing.NewPaymentLog("TX-F1", "INV-000204", decimal.NewFromFloat(100.00),
			billing.PaymentMethodMpesa, billing.PaymentLogStatusFailed, nil)
		require.NoError(t, err)
		logRepo.On("FindByID", ctx, log.ID).Return(log, nil)

		_, err = svc.Reconcile(ctx, log.ID, operator)
		require.Error(t, err)
		requireDomainCode(t, err, "NOT_RECONCILABLE")
	})

	t.Run("fails when nothing resolves the log to an invoice", func(t *testing.T) {
		svc, invoiceRepo, paymentRepo, logRepo, _, _ := newReconciliationFixture()

		log := newSuccessLog(t, "INV-999999", 500.00)
		logRepo.On("FindByID", ctx, log.ID).Return(log, nil)
		paymentRepo.On("FindBySourceLogID", ctx, log.ID).Return(nil, shared.ErrNotFound)
		invoiceRepo.On("FindByInvoiceNumber", ctx, "INV-999999").Return(nil, shared.ErrNotFound)

		_, err := svc.Reconcile(ctx, log.ID, operator)
		require.Error(t, err)
		requireDomainCode(t, err, "AMBIGUOUS_MATCH")
	})

	t.Run("stale invoice number falls back to the payload id", func(t *testing.T) {
		svc, invoiceRepo, paymentRepo, logRepo, _, _ := newReconciliationFixture()

		inv := newDomainInvoice(t, "INV-000206", patientID, billing.InvoiceTypeTreatment)
		log, err := billing.NewPaymentLog("TX-88", "INV-RENUMBERED", decimal.NewFromFloat(100.00),
			billing.PaymentMethodMpesa, billing.PaymentLogStatusSuccess,
			billing.RawPayload{"invoice_id": inv.ID.String()})
		require.NoError(t, err)

		logRepo.On("FindByID", ctx, log.ID).Return(log, nil)
		paymentRepo.On("FindBySourceLogID", ctx, log.ID).Return(nil, shared.ErrNotFound)
		invoiceRepo.On("FindByInvoiceNumber", ctx, "INV-RENUMBERED").Return(nil, shared.ErrNotFound)
		invoiceRepo.On("FindByID", ctx, inv.ID).Return(inv, nil)
		invoiceRepo.On("SaveWithLock", ctx, inv).Return(nil)
		paymentRepo.On("Save", ctx, mock.AnythingOfType("*billing.Payment")).Return(nil)
		logRepo.On("Save", ctx, log).Return(nil)

		result, err := svc.Reconcile(ctx, log.ID, operator)
		require.NoError(t, err)

		assert.False(t, result.AlreadyProcessed)
		assert.Equal(t, inv.ID, result.InvoiceID)
		assert.True(t, log.IsMatched())
	})

	t.Run("a failed attempt releases the claim so a retry can land", func(t *testing.T) {
		svc, invoiceRepo, paymentRepo, logRepo, store, _ := newReconciliationFixture()

		first := newDomainInvoice(t, "INV-000207", patientID, billing.InvoiceTypeTreatment)
		second := newDomainInvoice(t, "INV-000207", patientID, billing.InvoiceTypeTreatment)
		log := newSuccessLog(t, "INV-000207", 500.00)

		logRepo.On("FindByID", ctx, log.ID).Return(log, nil)
		paymentRepo.On("FindBySourceLogID", ctx, log.ID).Return(nil, shared.ErrNotFound)
		invoiceRepo.On("FindByInvoiceNumber", ctx, "INV-000207").Return(first, nil).Once()
		invoiceRepo.On("SaveWithLock", ctx, first).Return(errors.New("connection reset")).Once()

		_, err := svc.Reconcile(ctx, log.ID, operator)
		require.Error(t, err)

		processed, err := store.IsProcessed(ctx, reconcileKey(log.ID))
		require.NoError(t, err)
		assert.False(t, processed, "claim should not outlive a failed attempt")

		invoiceRepo.On("FindByInvoiceNumber", ctx, "INV-000207").Return(second, nil).Once()
		invoiceRepo.On("SaveWithLock", ctx, second).Return(nil).Once()
		paymentRepo.On("Save", ctx, mock.AnythingOfType("*billing.Payment")).Return(nil)
		logRepo.On("Save", ctx, log).Return(nil)

		result, err := svc.Reconcile(ctx, log.ID, operator)
		require.NoError(t, err)

		assert.False(t, result.AlreadyProcessed)
		assert.Equal(t, second.ID, result.InvoiceID)
		assert.True(t, log.IsMatched())
	})

	t.Run("fails when the log does not exist", func(t *testing.T) {
		svc, _, _, logRepo, _, _ := newReconciliationFixture()

		missing := uuid.New()
		logRepo.On("FindByID", ctx, missing).Return(nil, nil)

		_, err := svc.Reconcile(ctx, missing, operator)
		require.Error(t, err)
		requireDomainCode(t, err, "NOT_FOUND")
	})

	t.Run("suppresses a concurrent replay via the idempotency store", func(t *testing.T) {
		svc, invoiceRepo, paymentRepo, logRepo, store, _ := newReconciliationFixture()

		log := newSuccessLog(t, "INV-000205", 500.00)
		_, err := store.MarkProcessed(ctx, reconcileKey(log.ID), reconcileLockTTL)
		require.NoError(t, err)

		logRepo.On("FindByID", ctx, log.ID).Return(log, nil)
		paymentRepo.On("FindBySourceLogID", ctx, log.ID).Return(nil, nil)

		result, err := svc.Reconcile(ctx, log.ID, operator)
		require.NoError(t, err)
		assert.True(t, result.AlreadyProcessed)
		invoiceRepo.AssertNotCalled(t, "FindByInvoiceNumber", ctx, mock.Anything)
	})
}

func TestReconciliationService_ListPaymentLogs(t *testing.T) {
	ctx := context.Background()

	t.Run("lists unmatched logs", func(t *testing.T) {
		svc, _, _, logRepo, _, _ := newReconciliationFixture()

		logs := []billing.PaymentLog{*newSuccessLog(t, "INV-000210", 300.00)}
		logRepo.On("FindAll", ctx, mock.AnythingOfType("billing.PaymentLogFilter")).Return(logs, nil)
		logRepo.On("Count", ctx, mock.AnythingOfType("billing.PaymentLogFilter")).Return(int64(1), nil)

		unmatched := true
		result, err := svc.ListPaymentLogs(ctx, PaymentLogListFilter{Unmatched: &unmatched})
		require.NoError(t, err)

		require.Len(t, result.Items, 1)
		assert.Equal(t, "QJL7XK29PM", result.Items[0].TransactionID)
		assert.Nil(t, result.Items[0].MatchedInvoiceID)
	})

	t.Run("fails with invalid status filter", func(t *testing.T) {
		svc, _, _, _, _, _ := newReconciliationFixture()

		_, err := svc.ListPaymentLogs(ctx, PaymentLogListFilter{Status: "MAYBE"})
		require.Error(t, err)
		requireDomainCode(t, err, "VALIDATION_ERROR")
	})
}
