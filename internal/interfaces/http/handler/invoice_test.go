package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	billingapp "github.com/hms/backend/internal/application/billing"
	"github.com/hms/backend/internal/domain/billing"
	"github.com/hms/backend/internal/domain/shared"
	"github.com/hms/backend/internal/interfaces/http/middleware"
)

type invoiceTestMocks struct {
	invoiceRepo *MockInvoiceRepository
	paymentRepo *MockPaymentRepository
	refundRepo  *MockRefundRepository
	sequence    *MockInvoiceSequence
	patients    *MockPatientDirectory
}

func setupInvoiceTestRouter(staffID uuid.UUID) (*gin.Engine, *invoiceTestMocks, *InvoiceHandler) {
	gin.SetMode(gin.TestMode)

	mocks := &invoiceTestMocks{
		invoiceRepo: new(MockInvoiceRepository),
		paymentRepo: new(MockPaymentRepository),
		refundRepo:  new(MockRefundRepository),
		sequence:    new(MockInvoiceSequence),
		patients:    new(MockPatientDirectory),
	}

	invoiceService := billingapp.NewInvoiceService(
		mocks.invoiceRepo,
		mocks.paymentRepo,
		mocks.refundRepo,
		mocks.sequence,
		mocks.patients,
		&noopPublisher{},
		nil,
	)
	dischargeService := billingapp.NewDischargeService(invoiceService, nil)
	handler := NewInvoiceHandler(invoiceService, dischargeService)

	router := gin.New()
	// Test authentication middleware that sets JWT context values
	router.Use(func(c *gin.Context) {
		c.Set(middleware.JWTUserIDKey, staffID.String())
		c.Next()
	})

	return router, mocks, handler
}

func newTestInvoice(t *testing.T, invoiceType billing.InvoiceType) *billing.Invoice {
	t.Helper()
	item, err := billing.NewLineItem("Consultation", "CONSULT", time.Now(), 1, decimal.NewFromInt(100), decimal.Zero)
	require.NoError(t, err)
	invoice, err := billing.NewInvoice("INV-000001", uuid.New(), invoiceType, []billing.LineItem{item})
	require.NoError(t, err)
	return invoice
}

func TestInvoiceHandler_Create(t *testing.T) {
	t.Run("should create a new invoice when no open invoice matches", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.POST("/billing/invoices", handler.Create)

		patientID := uuid.New()
		mocks.patients.On("Exists", mock.Anything, patientID).Return(true, nil)
		mocks.invoiceRepo.On("FindPendingByPatientAndType", mock.Anything, patientID, billing.InvoiceTypeTreatment).
			Return([]billing.Invoice{}, nil)
		mocks.sequence.On("Next", mock.Anything).Return("INV-000042", nil)
		mocks.invoiceRepo.On("Save", mock.Anything, mock.AnythingOfType("*billing.Invoice")).Return(nil)

		body, _ := json.Marshal(gin.H{
			"patient_id": patientID.String(),
			"type":       "TREATMENT",
			"items": []gin.H{
				{"description": "Consultation", "amount": 500},
			},
		})

		req, _ := http.NewRequest(http.MethodPost, "/billing/invoices", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "INV-000042")
		mocks.invoiceRepo.AssertExpectations(t)
		mocks.sequence.AssertExpectations(t)
	})

	t.Run("should merge charges into the open invoice", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.POST("/billing/invoices", handler.Create)

		open := newTestInvoice(t, billing.InvoiceTypeTreatment)
		patientID := open.PatientID

		mocks.patients.On("Exists", mock.Anything, patientID).Return(true, nil)
		mocks.invoiceRepo.On("FindPendingByPatientAndType", mock.Anything, patientID, billing.InvoiceTypeTreatment).
			Return([]billing.Invoice{*open}, nil)
		mocks.invoiceRepo.On("SaveWithLock", mock.Anything, mock.AnythingOfType("*billing.Invoice")).Return(nil)

		body, _ := json.Marshal(gin.H{
			"patient_id": patientID.String(),
			"type":       "TREATMENT",
			"items": []gin.H{
				{"description": "X-Ray", "amount": 250},
			},
		})

		req, _ := http.NewRequest(http.MethodPost, "/billing/invoices", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"merged":true`)
		mocks.sequence.AssertNotCalled(t, "Next", mock.Anything)
	})

	t.Run("should return 404 for unknown patient", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.POST("/billing/invoices", handler.Create)

		patientID := uuid.New()
		mocks.patients.On("Exists", mock.Anything, patientID).Return(false, nil)

		body, _ := json.Marshal(gin.H{
			"patient_id": patientID.String(),
			"type":       "TREATMENT",
			"items": []gin.H{
				{"description": "Consultation", "amount": 500},
			},
		})

		req, _ := http.NewRequest(http.MethodPost, "/billing/invoices", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_NOT_FOUND")
	})

	t.Run("should return 400 for empty items", func(t *testing.T) {
		staffID := uuid.New()
		router, _, handler := setupInvoiceTestRouter(staffID)
		router.POST("/billing/invoices", handler.Create)

		body, _ := json.Marshal(gin.H{
			"patient_id": uuid.New().String(),
			"type":       "TREATMENT",
			"items":      []gin.H{},
		})

		req, _ := http.NewRequest(http.MethodPost, "/billing/invoices", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestInvoiceHandler_GetByID(t *testing.T) {
	t.Run("should return invoice by id", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.GET("/billing/invoices/:id", handler.GetByID)

		invoice := newTestInvoice(t, billing.InvoiceTypeLab)
		mocks.invoiceRepo.On("FindByID", mock.Anything, invoice.ID).Return(invoice, nil)

		req, _ := http.NewRequest(http.MethodGet, "/billing/invoices/"+invoice.ID.String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), invoice.InvoiceNumber)
	})

	t.Run("should return 400 for malformed id", func(t *testing.T) {
		staffID := uuid.New()
		router, _, handler := setupInvoiceTestRouter(staffID)
		router.GET("/billing/invoices/:id", handler.GetByID)

		req, _ := http.NewRequest(http.MethodGet, "/billing/invoices/not-a-uuid", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should return 404 when invoice does not exist", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.GET("/billing/invoices/:id", handler.GetByID)

		invoiceID := uuid.New()
		mocks.invoiceRepo.On("FindByID", mock.Anything, invoiceID).Return(nil, shared.ErrNotFound)

		req, _ := http.NewRequest(http.MethodGet, "/billing/invoices/"+invoiceID.String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestInvoiceHandler_List(t *testing.T) {
	t.Run("should list invoices with pagination meta", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.GET("/billing/invoices", handler.List)

		invoice := newTestInvoice(t, billing.InvoiceTypeTreatment)
		mocks.invoiceRepo.On("FindAll", mock.Anything, mock.AnythingOfType("billing.InvoiceFilter")).
			Return([]billing.Invoice{*invoice}, nil)
		mocks.invoiceRepo.On("Count", mock.Anything, mock.AnythingOfType("billing.InvoiceFilter")).
			Return(int64(1), nil)

		req, _ := http.NewRequest(http.MethodGet, "/billing/invoices?status=PENDING&page=1&page_size=10", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response["success"].(bool))
		meta := response["meta"].(map[string]interface{})
		assert.Equal(t, float64(1), meta["total"])
	})
}

func TestInvoiceHandler_UpdateItems(t *testing.T) {
	t.Run("should replace line items on an open invoice", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.PUT("/billing/invoices/:id/items", handler.UpdateItems)

		invoice := newTestInvoice(t, billing.InvoiceTypeTreatment)
		mocks.invoiceRepo.On("FindByID", mock.Anything, invoice.ID).Return(invoice, nil)
		mocks.invoiceRepo.On("SaveWithLock", mock.Anything, invoice).Return(nil)

		body, _ := json.Marshal(gin.H{
			"items": []gin.H{
				{"description": "Amended consultation", "amount": 750},
			},
		})

		req, _ := http.NewRequest(http.MethodPut, "/billing/invoices/"+invoice.ID.String()+"/items", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Amended consultation")
	})

	t.Run("should return 422 for a finalized invoice", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.PUT("/billing/invoices/:id/items", handler.UpdateItems)

		invoice := newTestInvoice(t, billing.InvoiceTypeTreatment)
		_, err := invoice.Finalize(staffID)
		require.NoError(t, err)

		mocks.invoiceRepo.On("FindByID", mock.Anything, invoice.ID).Return(invoice, nil)

		body, _ := json.Marshal(gin.H{
			"items": []gin.H{
				{"description": "Late edit", "amount": 10},
			},
		})

		req, _ := http.NewRequest(http.MethodPut, "/billing/invoices/"+invoice.ID.String()+"/items", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_INVOICE_LOCKED")
	})
}

func TestInvoiceHandler_Finalize(t *testing.T) {
	t.Run("should finalize a pending invoice", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.POST("/billing/invoices/:id/finalize", handler.Finalize)

		invoice := newTestInvoice(t, billing.InvoiceTypeTreatment)
		mocks.invoiceRepo.On("FindByID", mock.Anything, invoice.ID).Return(invoice, nil)
		mocks.invoiceRepo.On("SaveWithLock", mock.Anything, invoice).Return(nil)

		req, _ := http.NewRequest(http.MethodPost, "/billing/invoices/"+invoice.ID.String()+"/finalize", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "FINALIZED")
	})

	t.Run("should return 401 without staff identity", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		handler := NewInvoiceHandler(nil, nil)
		router := gin.New()
		router.POST("/billing/invoices/:id/finalize", handler.Finalize)

		req, _ := http.NewRequest(http.MethodPost, "/billing/invoices/"+uuid.New().String()+"/finalize", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestInvoiceHandler_Cancel(t *testing.T) {
	t.Run("should cancel an unpaid invoice", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.POST("/billing/invoices/:id/cancel", handler.Cancel)

		invoice := newTestInvoice(t, billing.InvoiceTypeTreatment)
		mocks.invoiceRepo.On("FindByID", mock.Anything, invoice.ID).Return(invoice, nil)
		mocks.invoiceRepo.On("SaveWithLock", mock.Anything, invoice).Return(nil)

		body, _ := json.Marshal(gin.H{"reason": "duplicate entry"})

		req, _ := http.NewRequest(http.MethodPost, "/billing/invoices/"+invoice.ID.String()+"/cancel", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "CANCELLED")
	})

	t.Run("should return 400 when reason is missing", func(t *testing.T) {
		staffID := uuid.New()
		router, _, handler := setupInvoiceTestRouter(staffID)
		router.POST("/billing/invoices/:id/cancel", handler.Cancel)

		req, _ := http.NewRequest(http.MethodPost, "/billing/invoices/"+uuid.New().String()+"/cancel", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestInvoiceHandler_Discharge(t *testing.T) {
	t.Run("should merge discharge charges and finalize the admission invoice", func(t *testing.T) {
		staffID := uuid.New()
		router, mocks, handler := setupInvoiceTestRouter(staffID)
		router.POST("/billing/discharges", handler.Discharge)

		open := newTestInvoice(t, billing.InvoiceTypeAdmission)
		patientID := open.PatientID

		mocks.patients.On("Exists", mock.Anything, patientID).Return(true, nil)
		mocks.invoiceRepo.On("FindPendingByPatientAndType", mock.Anything, patientID, billing.InvoiceTypeAdmission).
			Return([]billing.Invoice{*open}, nil)
		mocks.invoiceRepo.On("FindByID", mock.Anything, open.ID).Return(open, nil)
		mocks.invoiceRepo.On("SaveWithLock", mock.Anything, mock.AnythingOfType("*billing.Invoice")).Return(nil)

		body, _ := json.Marshal(gin.H{
			"patient_id": patientID.String(),
			"charges": []gin.H{
				{"description": "Ward stay 3 nights", "amount": 4500},
			},
		})

		req, _ := http.NewRequest(http.MethodPost, "/billing/discharges", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "FINALIZED")
		mocks.sequence.AssertNotCalled(t, "Next", mock.Anything)
	})
}
