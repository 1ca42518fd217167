package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/hms/backend/internal/application/billing"
)

// ReconciliationHandler handles payment log reconciliation API endpoints
type ReconciliationHandler struct {
	BaseHandler
	reconciliationService *billingapp.ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconciliationService *billingapp.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
	}
}

// Reconcile handles POST /billing/reconciliation/:logId. Replaying an
// already-matched log returns the original outcome with already_processed set
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	logID, err := uuid.Parse(c.Param("logId"))
	if err != nil {
		h.BadRequest(c, "Invalid payment log ID format")
		return
	}

	staffID, err := getStaffID(c)
	if err != nil {
		h.Unauthorized(c, "Staff identity required")
		return
	}

	result, err := h.reconciliationService.Reconcile(c.Request.Context(), logID, staffID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// ListPaymentLogs handles GET /billing/payment-logs
func (h *ReconciliationHandler) ListPaymentLogs(c *gin.Context) {
	var filter billingapp.PaymentLogListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	result, err := h.reconciliationService.ListPaymentLogs(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}
