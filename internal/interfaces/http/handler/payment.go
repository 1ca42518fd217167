package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/hms/backend/internal/application/billing"
)

// PaymentHandler handles payment and refund API endpoints
type PaymentHandler struct {
	BaseHandler
	paymentService *billingapp.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *billingapp.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// RecordPayment handles POST /billing/invoices/:id/payments
func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req billingapp.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	staffID, err := getStaffID(c)
	if err != nil {
		h.Unauthorized(c, "Staff identity required")
		return
	}

	payment, err := h.paymentService.RecordPayment(c.Request.Context(), invoiceID, req, staffID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, payment)
}

// Refund handles POST /billing/invoices/:id/refunds
func (h *PaymentHandler) Refund(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req billingapp.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	staffID, err := getStaffID(c)
	if err != nil {
		h.Unauthorized(c, "Staff identity required")
		return
	}

	refund, err := h.paymentService.Refund(c.Request.Context(), invoiceID, req, staffID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, refund)
}

// GetHistory handles GET /billing/invoices/:id/payments
func (h *PaymentHandler) GetHistory(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	history, err := h.paymentService.GetPaymentHistory(c.Request.Context(), invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, history)
}
