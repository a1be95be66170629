package handler

import (
	"time"

	ledgerapp "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/interfaces/http/dto"
	"github.com/erp/receivables/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationHandler handles bank transaction import, matching and
// allocation endpoints
type ReconciliationHandler struct {
	BaseHandler
	allocationService *ledgerapp.AllocationService
	matchingService   *ledgerapp.MatchingService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(
	allocationService *ledgerapp.AllocationService,
	matchingService *ledgerapp.MatchingService,
) *ReconciliationHandler {
	return &ReconciliationHandler{
		allocationService: allocationService,
		matchingService:   matchingService,
	}
}

// ===================== Request/Response DTOs =====================

// BankTransactionResponse represents a bank transaction in API responses
type BankTransactionResponse struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	ValueDate        time.Time `json:"value_date"`
	CounterpartyName string    `json:"counterparty_name,omitempty"`
	CounterpartyIBAN string    `json:"counterparty_iban,omitempty"`
	Reference        string    `json:"reference,omitempty"`
	MatchedAmount    float64   `json:"matched_amount"`
	UnmatchedAmount  float64   `json:"unmatched_amount"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int       `json:"version"`
}

// MatchSuggestionResponse represents one proposed invoice match
type MatchSuggestionResponse struct {
	Invoice    InvoiceResponse `json:"invoice"`
	Confidence string          `json:"confidence"`
}

// ImportTransactionRequest represents a request to import a bank transaction
type ImportTransactionRequest struct {
	Amount           float64 `json:"amount" binding:"required,gt=0,decimal2"`
	ValueDate        string  `json:"value_date" binding:"required"`
	CounterpartyName string  `json:"counterparty_name,omitempty" binding:"max=200"`
	CounterpartyIBAN string  `json:"counterparty_iban,omitempty" binding:"max=34"`
	Reference        string  `json:"reference,omitempty" binding:"max=500"`
}

// AllocationLineRequest assigns an amount from the transaction to one invoice
type AllocationLineRequest struct {
	InvoiceID string  `json:"invoice_id" binding:"required,uuid"`
	Amount    float64 `json:"amount" binding:"required,gt=0,decimal2"`
}

// AllocateRequest represents one atomic allocation command
type AllocateRequest struct {
	Allocations    []AllocationLineRequest `json:"allocations" binding:"required,min=1,dive"`
	IdempotencyKey string                  `json:"idempotency_key,omitempty" binding:"max=128"`
}

// listTransactionsQuery binds the bank transaction list filter parameters
type listTransactionsQuery struct {
	dto.ListRequest
	Status   string `form:"status"`
	DateFrom string `form:"date_from"`
	DateTo   string `form:"date_to"`
}

func toBankTransactionResponse(tx *ledger.BankTransaction) BankTransactionResponse {
	return BankTransactionResponse{
		ID:               tx.ID.String(),
		TenantID:         tx.TenantID.String(),
		Amount:           tx.Amount.InexactFloat64(),
		Currency:         string(tx.Currency),
		ValueDate:        tx.ValueDate,
		CounterpartyName: tx.CounterpartyName,
		CounterpartyIBAN: tx.CounterpartyIBAN,
		Reference:        tx.Reference,
		MatchedAmount:    tx.MatchedAmount.InexactFloat64(),
		UnmatchedAmount:  tx.RemainingAmount().InexactFloat64(),
		Status:           string(tx.Status),
		CreatedAt:        tx.CreatedAt,
		UpdatedAt:        tx.UpdatedAt,
		Version:          tx.Version,
	}
}

// ===================== Handlers =====================

// ImportTransaction registers an incoming bank transaction for later matching
func (h *ReconciliationHandler) ImportTransaction(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var req ImportTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	valueDate, err := parseDate(req.ValueDate)
	if err != nil {
		h.BadRequest(c, "Invalid value date format")
		return
	}

	tx, err := h.allocationService.ImportTransaction(c.Request.Context(), ledgerapp.ImportTransactionRequest{
		TenantID:         tenantID,
		Amount:           decimal.NewFromFloat(req.Amount),
		ValueDate:        valueDate,
		CounterpartyName: req.CounterpartyName,
		CounterpartyIBAN: req.CounterpartyIBAN,
		Reference:        req.Reference,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toBankTransactionResponse(tx))
}

// GetTransaction returns a single bank transaction
func (h *ReconciliationHandler) GetTransaction(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID format")
		return
	}

	tx, err := h.allocationService.GetTransaction(c.Request.Context(), tenantID, txID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toBankTransactionResponse(tx))
}

// ListTransactions returns bank transactions matching the filter
func (h *ReconciliationHandler) ListTransactions(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var query listTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	filter := ledger.BankTransactionFilter{}
	filter.Filter = toSharedFilter(query.ListRequest)
	if query.Status != "" {
		status := ledger.MatchStatus(query.Status)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid status value")
			return
		}
		filter.Status = &status
	}
	if query.DateFrom != "" {
		from, err := parseDate(query.DateFrom)
		if err != nil {
			h.BadRequest(c, "Invalid date_from format")
			return
		}
		filter.DateFrom = &from
	}
	if query.DateTo != "" {
		to, err := parseDate(query.DateTo)
		if err != nil {
			h.BadRequest(c, "Invalid date_to format")
			return
		}
		filter.DateTo = &to
	}

	transactions, err := h.allocationService.ListTransactions(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]BankTransactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		responses = append(responses, toBankTransactionResponse(tx))
	}
	h.Success(c, responses)
}

// Allocate applies amounts from a bank transaction against invoices
func (h *ReconciliationHandler) Allocate(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID format")
		return
	}

	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	operatorID, err := getUserID(c)
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	lines := make([]ledgerapp.AllocationLine, 0, len(req.Allocations))
	for _, line := range req.Allocations {
		invoiceID, err := uuid.Parse(line.InvoiceID)
		if err != nil {
			h.BadRequest(c, "Invalid invoice ID format")
			return
		}
		lines = append(lines, ledgerapp.AllocationLine{
			InvoiceID: invoiceID,
			Amount:    decimal.NewFromFloat(line.Amount),
		})
	}

	payments, err := h.allocationService.Allocate(c.Request.Context(), ledgerapp.AllocateRequest{
		TenantID:       tenantID,
		TransactionID:  txID,
		Allocations:    lines,
		OperatorID:     operatorID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		responses = append(responses, toPaymentResponse(p))
	}
	h.Created(c, responses)
}

// SuggestMatches proposes invoices for an unmatched bank transaction
func (h *ReconciliationHandler) SuggestMatches(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID format")
		return
	}

	suggestions, err := h.matchingService.SuggestMatches(c.Request.Context(), tenantID, txID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]MatchSuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		responses = append(responses, MatchSuggestionResponse{
			Invoice:    toInvoiceResponse(s.Invoice),
			Confidence: string(s.Confidence),
		})
	}
	h.Success(c, responses)
}
