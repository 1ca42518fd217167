package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	billingapp "github.com/hms/backend/internal/application/billing"
)

// InvoiceHandler handles invoice ledger API endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService   *billingapp.InvoiceService
	dischargeService *billingapp.DischargeService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *billingapp.InvoiceService, dischargeService *billingapp.DischargeService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService:   invoiceService,
		dischargeService: dischargeService,
	}
}

// CancelInvoiceRequest carries the mandatory cancellation reason
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Create handles POST /billing/invoices. Charges for a patient with an open
// invoice of the same type are merged into it instead of opening a second one
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req billingapp.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	invoice, err := h.invoiceService.CreateOrMergeInvoice(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if invoice.Merged {
		h.Success(c, invoice)
		return
	}
	h.Created(c, invoice)
}

// List handles GET /billing/invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	var filter billingapp.InvoiceListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	result, err := h.invoiceService.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// GetByID handles GET /billing/invoices/:id
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// UpdateItems handles PUT /billing/invoices/:id/items
func (h *InvoiceHandler) UpdateItems(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req billingapp.UpdateLineItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	invoice, err := h.invoiceService.UpdateLineItems(c.Request.Context(), invoiceID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// Finalize handles POST /billing/invoices/:id/finalize
func (h *InvoiceHandler) Finalize(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	staffID, err := getStaffID(c)
	if err != nil {
		h.Unauthorized(c, "Staff identity required")
		return
	}

	invoice, err := h.invoiceService.Finalize(c.Request.Context(), invoiceID, staffID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// Cancel handles POST /billing/invoices/:id/cancel
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Cancellation reason is required")
		return
	}

	invoice, err := h.invoiceService.Cancel(c.Request.Context(), invoiceID, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// Discharge handles POST /billing/discharges. The discharge charges are
// merged into the patient's open admission invoice, which is then finalized
func (h *InvoiceHandler) Discharge(c *gin.Context) {
	var req billingapp.DischargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	staffID, err := getStaffID(c)
	if err != nil {
		h.Unauthorized(c, "Staff identity required")
		return
	}

	invoice, err := h.dischargeService.Discharge(c.Request.Context(), req, staffID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}
