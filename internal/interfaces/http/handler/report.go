package handler

import (
	"github.com/gin-gonic/gin"

	reportapp "github.com/hms/backend/internal/application/report"
)

// ReportHandler handles reporting API endpoints
type ReportHandler struct {
	BaseHandler
	revenueService *reportapp.RevenueReportService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(revenueService *reportapp.RevenueReportService) *ReportHandler {
	return &ReportHandler{
		revenueService: revenueService,
	}
}

// GetRevenue handles GET /reports/revenue
func (h *ReportHandler) GetRevenue(c *gin.Context) {
	var req reportapp.RevenueReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	report, err := h.revenueService.GetRevenueReport(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}
