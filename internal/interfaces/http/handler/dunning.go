package handler

import (
	"time"

	ledgerapp "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DunningHandler handles dunning candidate selection and batch runs
type DunningHandler struct {
	BaseHandler
	dunningService *ledgerapp.DunningService
	defaults       DunningDefaults
}

// DunningDefaults carries the configured selection thresholds applied when a
// request leaves them unset
type DunningDefaults struct {
	MinDaysOverdue int
	MinOpenAmount  decimal.Decimal
}

// NewDunningHandler creates a new DunningHandler
func NewDunningHandler(dunningService *ledgerapp.DunningService, defaults DunningDefaults) *DunningHandler {
	return &DunningHandler{
		dunningService: dunningService,
		defaults:       defaults,
	}
}

// ===================== Request/Response DTOs =====================

// DunningCandidateResponse represents one invoice eligible for dunning
type DunningCandidateResponse struct {
	InvoiceID      string    `json:"invoice_id"`
	DocumentNumber string    `json:"document_number"`
	CustomerName   string    `json:"customer_name"`
	CustomerNumber string    `json:"customer_number"`
	DueDate        time.Time `json:"due_date"`
	OpenAmount     float64   `json:"open_amount"`
	DaysOverdue    int       `json:"days_overdue"`
	DunningLevel   int       `json:"dunning_level"`
	NextLevel      int       `json:"next_level"`
}

// DunningRecordResponse represents a dunning record in API responses
type DunningRecordResponse struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	Level     int       `json:"level"`
	DunnedOn  time.Time `json:"dunned_on"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// dunningThresholdsQuery binds the optional selection thresholds
type dunningThresholdsQuery struct {
	MinDaysOverdue *int     `form:"min_days_overdue" binding:"omitempty,min=0"`
	MinOpenAmount  *float64 `form:"min_open_amount" binding:"omitempty,gt=0,decimal2"`
}

func toDunningRecordResponse(r *ledger.DunningRecord) DunningRecordResponse {
	return DunningRecordResponse{
		ID:        r.ID.String(),
		InvoiceID: r.InvoiceID.String(),
		Level:     r.Level,
		DunnedOn:  r.DunnedOn,
		RunID:     r.RunID.String(),
		CreatedAt: r.CreatedAt,
	}
}

func (h *DunningHandler) thresholds(query dunningThresholdsQuery) (int, decimal.Decimal) {
	minDays := h.defaults.MinDaysOverdue
	if query.MinDaysOverdue != nil {
		minDays = *query.MinDaysOverdue
	}
	minOpen := h.defaults.MinOpenAmount
	if query.MinOpenAmount != nil {
		minOpen = decimal.NewFromFloat(*query.MinOpenAmount)
	}
	return minDays, minOpen
}

// ===================== Handlers =====================

// ListCandidates returns the invoices currently eligible for dunning
func (h *DunningHandler) ListCandidates(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var query dunningThresholdsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	minDays, minOpen := h.thresholds(query)

	candidates, err := h.dunningService.SelectCandidates(c.Request.Context(), tenantID, minDays, minOpen)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	now := time.Now()
	responses := make([]DunningCandidateResponse, 0, len(candidates))
	for _, inv := range candidates {
		responses = append(responses, DunningCandidateResponse{
			InvoiceID:      inv.ID.String(),
			DocumentNumber: inv.DocumentNumber,
			CustomerName:   inv.CustomerName,
			CustomerNumber: inv.CustomerNumber,
			DueDate:        inv.DueDate,
			OpenAmount:     inv.OpenAmount().InexactFloat64(),
			DaysOverdue:    inv.DaysOverdue(now),
			DunningLevel:   inv.DunningLevel,
			NextLevel:      inv.DunningLevel + 1,
		})
	}
	h.Success(c, responses)
}

// Run executes a dunning batch for the tenant
func (h *DunningHandler) Run(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var query dunningThresholdsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	minDays, minOpen := h.thresholds(query)

	result, err := h.dunningService.Run(c.Request.Context(), tenantID, minDays, minOpen)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// DunInvoice creates a single dunning record outside a batch run
func (h *DunningHandler) DunInvoice(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	record, err := h.dunningService.CreateDunning(c.Request.Context(), tenantID, invoiceID, uuid.New())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toDunningRecordResponse(record))
}

// History returns the dunning records for an invoice, newest first
func (h *DunningHandler) History(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	records, err := h.dunningService.History(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]DunningRecordResponse, 0, len(records))
	for _, r := range records {
		responses = append(responses, toDunningRecordResponse(r))
	}
	h.Success(c, responses)
}
