package handler

import (
	ledgerapp "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ReportHandler handles the open-items report and the accounting export
type ReportHandler struct {
	BaseHandler
	exportService *ledgerapp.ExportService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(exportService *ledgerapp.ExportService) *ReportHandler {
	return &ReportHandler{
		exportService: exportService,
	}
}

// exportRangeQuery binds the date range for the accounting export
type exportRangeQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

// OpenItems returns the aged open-items snapshot for the tenant
func (h *ReportHandler) OpenItems(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	report, err := h.exportService.OpenItems(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}

// AccountingExport returns the posting rows for a date range
func (h *ReportHandler) AccountingExport(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var query exportRangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	from, err := parseDate(query.From)
	if err != nil {
		h.BadRequest(c, "Invalid from date format")
		return
	}
	to, err := parseDate(query.To)
	if err != nil {
		h.BadRequest(c, "Invalid to date format")
		return
	}
	if to.Before(from) {
		h.BadRequest(c, "Date range end must not precede its start")
		return
	}

	rows, err := h.exportService.AccountingExport(c.Request.Context(), tenantID, from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, rows)
}
