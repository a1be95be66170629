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

// InvoiceHandler handles open-item ledger API endpoints
type InvoiceHandler struct {
	BaseHandler
	ledgerService *ledgerapp.LedgerService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(ledgerService *ledgerapp.LedgerService) *InvoiceHandler {
	return &InvoiceHandler{
		ledgerService: ledgerService,
	}
}

// ===================== Request/Response DTOs =====================

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID                string     `json:"id"`
	InvoiceID         string     `json:"invoice_id"`
	Amount            float64    `json:"amount"`
	Currency          string     `json:"currency"`
	PaidAt            time.Time  `json:"paid_at"`
	BankTransactionID *string    `json:"bank_transaction_id,omitempty"`
	Status            string     `json:"status"`
	ReversedAt        *time.Time `json:"reversed_at,omitempty"`
	ReversalReason    string     `json:"reversal_reason,omitempty"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	DocumentNumber string            `json:"document_number"`
	CustomerID     string            `json:"customer_id"`
	CustomerName   string            `json:"customer_name"`
	CustomerNumber string            `json:"customer_number"`
	IssueDate      time.Time         `json:"issue_date"`
	DueDate        time.Time         `json:"due_date"`
	NetAmount      float64           `json:"net_amount"`
	VATAmount      float64           `json:"vat_amount"`
	GrossAmount    float64           `json:"gross_amount"`
	CreditedAmount float64           `json:"credited_amount"`
	OpenAmount     float64           `json:"open_amount"`
	Status         string            `json:"status"`
	SourceOrderID  *string           `json:"source_order_id,omitempty"`
	DunningLevel   int               `json:"dunning_level"`
	LastDunnedAt   *time.Time        `json:"last_dunned_at,omitempty"`
	CancelledAt    *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason   string            `json:"cancel_reason,omitempty"`
	Payments       []PaymentResponse `json:"payments,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Version        int               `json:"version"`
}

// CreditNoteResponse represents a credit note in API responses
type CreditNoteResponse struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	DocumentNumber string     `json:"document_number"`
	InvoiceID      string     `json:"invoice_id"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	Reason         string     `json:"reason,omitempty"`
	IssueDate      time.Time  `json:"issue_date"`
	Status         string     `json:"status"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Version        int        `json:"version"`
}

// CreateInvoiceRequest represents a request to register an invoice
type CreateInvoiceRequest struct {
	DocumentNumber string  `json:"document_number" binding:"required,min=1,max=50"`
	CustomerID     string  `json:"customer_id" binding:"required,uuid"`
	CustomerName   string  `json:"customer_name" binding:"required,min=1,max=200"`
	CustomerNumber string  `json:"customer_number" binding:"required,min=1,max=50"`
	IssueDate      string  `json:"issue_date" binding:"required"`
	DueDate        string  `json:"due_date" binding:"required"`
	NetAmount      float64 `json:"net_amount" binding:"min=0,decimal2"`
	VATAmount      float64 `json:"vat_amount" binding:"min=0,decimal2"`
	GrossAmount    float64 `json:"gross_amount" binding:"required,gt=0,decimal2"`
	SourceOrderID  string  `json:"source_order_id,omitempty" binding:"omitempty,uuid"`
}

// RecordPaymentRequest represents a request to record a payment on an invoice
type RecordPaymentRequest struct {
	Amount            float64 `json:"amount" binding:"required,gt=0,decimal2"`
	PaidAt            string  `json:"paid_at" binding:"required"`
	BankTransactionID string  `json:"bank_transaction_id,omitempty" binding:"omitempty,uuid"`
}

// ReversePaymentRequest represents a request to reverse a payment
type ReversePaymentRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// CancelInvoiceRequest represents a request to cancel an invoice
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// CreateCreditNoteRequest represents a request to issue a credit note
type CreateCreditNoteRequest struct {
	DocumentNumber string  `json:"document_number" binding:"required,min=1,max=50"`
	InvoiceID      string  `json:"invoice_id" binding:"required,uuid"`
	Amount         float64 `json:"amount" binding:"required,gt=0,decimal2"`
	Reason         string  `json:"reason,omitempty" binding:"max=500"`
	IssueDate      string  `json:"issue_date" binding:"required"`
}

// listInvoicesQuery binds the invoice list filter parameters
type listInvoicesQuery struct {
	dto.ListRequest
	CustomerID string  `form:"customer_id" binding:"omitempty,uuid"`
	Status     string  `form:"status"`
	IssuedFrom string  `form:"issued_from"`
	IssuedTo   string  `form:"issued_to"`
	DueFrom    string  `form:"due_from"`
	DueTo      string  `form:"due_to"`
	MinOpen    float64 `form:"min_open" binding:"omitempty,gt=0,decimal2"`
}

// ===================== Conversions =====================

func toPaymentResponse(p *ledger.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:             p.ID.String(),
		InvoiceID:      p.InvoiceID.String(),
		Amount:         p.Amount.InexactFloat64(),
		Currency:       string(p.Currency),
		PaidAt:         p.PaidAt,
		Status:         string(p.Status),
		ReversedAt:     timePtrOrNil(p.ReversedAt),
		ReversalReason: p.ReversalReason,
	}
	if p.BankTransactionID != nil {
		s := p.BankTransactionID.String()
		resp.BankTransactionID = &s
	}
	return resp
}

func toInvoiceResponse(inv *ledger.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:             inv.ID.String(),
		TenantID:       inv.TenantID.String(),
		DocumentNumber: inv.DocumentNumber,
		CustomerID:     inv.CustomerID.String(),
		CustomerName:   inv.CustomerName,
		CustomerNumber: inv.CustomerNumber,
		IssueDate:      inv.IssueDate,
		DueDate:        inv.DueDate,
		NetAmount:      inv.NetAmount.InexactFloat64(),
		VATAmount:      inv.VATAmount.InexactFloat64(),
		GrossAmount:    inv.GrossAmount.InexactFloat64(),
		CreditedAmount: inv.CreditedAmount.InexactFloat64(),
		OpenAmount:     inv.OpenAmount().InexactFloat64(),
		Status:         string(inv.Status),
		DunningLevel:   inv.DunningLevel,
		LastDunnedAt:   timePtrOrNil(inv.LastDunnedAt),
		CancelledAt:    timePtrOrNil(inv.CancelledAt),
		CancelReason:   inv.CancelReason,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
		Version:        inv.Version,
	}
	if inv.SourceOrderID != nil {
		s := inv.SourceOrderID.String()
		resp.SourceOrderID = &s
	}
	for i := range inv.Payments {
		resp.Payments = append(resp.Payments, toPaymentResponse(&inv.Payments[i]))
	}
	return resp
}

func toCreditNoteResponse(cn *ledger.CreditNote) CreditNoteResponse {
	return CreditNoteResponse{
		ID:             cn.ID.String(),
		TenantID:       cn.TenantID.String(),
		DocumentNumber: cn.DocumentNumber,
		InvoiceID:      cn.InvoiceID.String(),
		Amount:         cn.Amount.InexactFloat64(),
		Currency:       string(cn.Currency),
		Reason:         cn.Reason,
		IssueDate:      cn.IssueDate,
		Status:         string(cn.Status),
		CancelledAt:    timePtrOrNil(cn.CancelledAt),
		CreatedAt:      cn.CreatedAt,
		UpdatedAt:      cn.UpdatedAt,
		Version:        cn.Version,
	}
}

// ===================== Handlers =====================

// Create registers a new invoice in the open-item ledger
func (h *InvoiceHandler) Create(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		h.BadRequest(c, "Invalid customer ID format")
		return
	}
	issueDate, err := parseDate(req.IssueDate)
	if err != nil {
		h.BadRequest(c, "Invalid issue date format")
		return
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		h.BadRequest(c, "Invalid due date format")
		return
	}
	sourceOrderID, err := parseOptionalUUID(req.SourceOrderID)
	if err != nil {
		h.BadRequest(c, "Invalid source order ID format")
		return
	}

	appReq := ledgerapp.CreateInvoiceRequest{
		TenantID:       tenantID,
		DocumentNumber: req.DocumentNumber,
		CustomerID:     customerID,
		CustomerName:   req.CustomerName,
		CustomerNumber: req.CustomerNumber,
		IssueDate:      issueDate,
		DueDate:        dueDate,
		NetAmount:      decimal.NewFromFloat(req.NetAmount),
		VATAmount:      decimal.NewFromFloat(req.VATAmount),
		GrossAmount:    decimal.NewFromFloat(req.GrossAmount),
		SourceOrderID:  sourceOrderID,
	}
	if userID, err := getUserID(c); err == nil {
		appReq.OperatorID = &userID
	}

	invoice, err := h.ledgerService.CreateInvoice(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toInvoiceResponse(invoice))
}

// GetByID returns a single invoice with its payments
func (h *InvoiceHandler) GetByID(c *gin.Context) {
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

	invoice, err := h.ledgerService.GetInvoice(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// List returns invoices matching the filter, paginated
func (h *InvoiceHandler) List(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	filter, err := buildInvoiceFilter(query)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	invoices, total, err := h.ledgerService.ListInvoices(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		responses = append(responses, toInvoiceResponse(inv))
	}

	h.SuccessWithMeta(c, responses, total, filter.Page, filter.PageSize)
}

// Cancel voids an invoice that carries no allocations
func (h *InvoiceHandler) Cancel(c *gin.Context) {
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

	var req CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := h.ledgerService.CancelInvoice(c.Request.Context(), tenantID, invoiceID, req.Reason); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// RecordPayment applies a manual payment to an invoice
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
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

	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	paidAt, err := parseDate(req.PaidAt)
	if err != nil {
		h.BadRequest(c, "Invalid paid_at date format")
		return
	}
	bankTransactionID, err := parseOptionalUUID(req.BankTransactionID)
	if err != nil {
		h.BadRequest(c, "Invalid bank transaction ID format")
		return
	}
	operatorID, err := getUserID(c)
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	payment, err := h.ledgerService.RecordPayment(c.Request.Context(), ledgerapp.RecordPaymentRequest{
		TenantID:          tenantID,
		InvoiceID:         invoiceID,
		Amount:            decimal.NewFromFloat(req.Amount),
		PaidAt:            paidAt,
		BankTransactionID: bankTransactionID,
		OperatorID:        operatorID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toPaymentResponse(payment))
}

// ReversePayment voids a payment and restores the invoice's open amount
func (h *InvoiceHandler) ReversePayment(c *gin.Context) {
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
	paymentID, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		h.BadRequest(c, "Invalid payment ID format")
		return
	}

	var req ReversePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	payment, err := h.ledgerService.ReversePayment(c.Request.Context(), ledgerapp.ReversePaymentRequest{
		TenantID:  tenantID,
		InvoiceID: invoiceID,
		PaymentID: paymentID,
		Reason:    req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toPaymentResponse(payment))
}

// CreateCreditNote issues a credit note against an invoice
func (h *InvoiceHandler) CreateCreditNote(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var req CreateCreditNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}
	issueDate, err := parseDate(req.IssueDate)
	if err != nil {
		h.BadRequest(c, "Invalid issue date format")
		return
	}

	appReq := ledgerapp.CreateCreditNoteRequest{
		TenantID:       tenantID,
		DocumentNumber: req.DocumentNumber,
		InvoiceID:      invoiceID,
		Amount:         decimal.NewFromFloat(req.Amount),
		Reason:         req.Reason,
		IssueDate:      issueDate,
	}
	if userID, err := getUserID(c); err == nil {
		appReq.OperatorID = &userID
	}

	creditNote, err := h.ledgerService.CreateCreditNote(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toCreditNoteResponse(creditNote))
}

// CancelCreditNote voids a credit note and releases the credited amount
func (h *InvoiceHandler) CancelCreditNote(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	creditNoteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid credit note ID format")
		return
	}

	if err := h.ledgerService.CancelCreditNote(c.Request.Context(), tenantID, creditNoteID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// ListCreditNotes returns the credit notes issued against an invoice
func (h *InvoiceHandler) ListCreditNotes(c *gin.Context) {
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

	creditNotes, err := h.ledgerService.ListCreditNotes(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]CreditNoteResponse, 0, len(creditNotes))
	for _, cn := range creditNotes {
		responses = append(responses, toCreditNoteResponse(cn))
	}
	h.Success(c, responses)
}

// buildInvoiceFilter converts the bound query into a domain filter
func buildInvoiceFilter(query listInvoicesQuery) (ledger.InvoiceFilter, error) {
	filter := ledger.InvoiceFilter{}
	filter.Filter = toSharedFilter(query.ListRequest)

	if query.CustomerID != "" {
		id, err := uuid.Parse(query.CustomerID)
		if err != nil {
			return filter, err
		}
		filter.CustomerID = &id
	}
	if query.Status != "" {
		status := ledger.InvoiceStatus(query.Status)
		if !status.IsValid() {
			return filter, errInvalidStatus
		}
		filter.Status = &status
	}
	if query.MinOpen > 0 {
		minOpen := decimal.NewFromFloat(query.MinOpen)
		filter.MinOpen = &minOpen
	}

	for _, rng := range []struct {
		raw  string
		dest **time.Time
	}{
		{query.IssuedFrom, &filter.IssuedFrom},
		{query.IssuedTo, &filter.IssuedTo},
		{query.DueFrom, &filter.DueFrom},
		{query.DueTo, &filter.DueTo},
	} {
		if rng.raw == "" {
			continue
		}
		t, err := parseDate(rng.raw)
		if err != nil {
			return filter, err
		}
		*rng.dest = &t
	}

	return filter, nil
}
