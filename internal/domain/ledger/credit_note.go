package ledger

import (
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditNoteStatus represents the lifecycle of a credit note
type CreditNoteStatus string

const (
	CreditNoteStatusActive    CreditNoteStatus = "ACTIVE"
	CreditNoteStatusCancelled CreditNoteStatus = "CANCELLED"
)

// IsValid checks if the status is a valid CreditNoteStatus
func (s CreditNoteStatus) IsValid() bool {
	return s == CreditNoteStatusActive || s == CreditNoteStatusCancelled
}

// CreditNote reduces the open amount of exactly one invoice. The amount
// check against the invoice lives on the Invoice aggregate; the note itself
// only carries the document data and its own lifecycle.
type CreditNote struct {
	shared.TenantAggregateRoot
	DocumentNumber string
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	Currency       valueobject.Currency
	Reason         string
	IssueDate      time.Time
	Status         CreditNoteStatus
	CancelledAt    *time.Time
}

// NewCreditNote creates a credit note against an invoice
func NewCreditNote(
	tenantID uuid.UUID,
	documentNumber string,
	invoiceID uuid.UUID,
	amount valueobject.Money,
	reason string,
	issueDate time.Time,
) (*CreditNote, error) {
	if documentNumber == "" {
		return nil, shared.NewValidationError("", "Document number cannot be empty")
	}
	if invoiceID == uuid.Nil {
		return nil, shared.NewValidationError(documentNumber, "Invoice ID cannot be empty")
	}
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError(documentNumber, "Credit amount must be positive")
	}
	if reason == "" {
		return nil, shared.NewValidationError(documentNumber, "Credit reason cannot be empty")
	}

	cn := &CreditNote{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		DocumentNumber:      documentNumber,
		InvoiceID:           invoiceID,
		Amount:              amount.Amount(),
		Currency:            amount.Currency(),
		Reason:              reason,
		IssueDate:           issueDate,
		Status:              CreditNoteStatusActive,
	}

	cn.AddDomainEvent(NewCreditNoteIssuedEvent(cn))

	return cn, nil
}

// IsActive returns true if the credit note still reduces the invoice
func (cn *CreditNote) IsActive() bool {
	return cn.Status == CreditNoteStatusActive
}

// Cancel voids the credit note. The caller must release the credited amount
// on the invoice in the same transaction.
func (cn *CreditNote) Cancel() error {
	if cn.Status == CreditNoteStatusCancelled {
		return shared.NewInvalidStateError(cn.ID.String(), "Credit note is already cancelled")
	}
	now := time.Now()
	cn.Status = CreditNoteStatusCancelled
	cn.CancelledAt = &now
	cn.UpdatedAt = now
	cn.IncrementVersion()

	cn.AddDomainEvent(NewCreditNoteCancelledEvent(cn))

	return nil
}

// GetAmountMoney returns the credit amount as Money
func (cn *CreditNote) GetAmountMoney() valueobject.Money {
	m, err := valueobject.NewMoney(cn.Amount, cn.Currency)
	if err != nil {
		return valueobject.NewMoneyEUR(cn.Amount)
	}
	return m
}

// CreditNoteIssuedEvent is published when a credit note is applied to an invoice
type CreditNoteIssuedEvent struct {
	shared.BaseDomainEvent
	DocumentNumber string          `json:"document_number"`
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	Amount         decimal.Decimal `json:"amount"`
}

// NewCreditNoteIssuedEvent creates a new credit note issued event
func NewCreditNoteIssuedEvent(cn *CreditNote) *CreditNoteIssuedEvent {
	return &CreditNoteIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CreditNoteIssued", "CreditNote", cn.ID, cn.TenantID),
		DocumentNumber:  cn.DocumentNumber,
		InvoiceID:       cn.InvoiceID,
		Amount:          cn.Amount,
	}
}

// CreditNoteCancelledEvent is published when a credit note is voided
type CreditNoteCancelledEvent struct {
	shared.BaseDomainEvent
	DocumentNumber string    `json:"document_number"`
	InvoiceID      uuid.UUID `json:"invoice_id"`
}

// NewCreditNoteCancelledEvent creates a new credit note cancelled event
func NewCreditNoteCancelledEvent(cn *CreditNote) *CreditNoteCancelledEvent {
	return &CreditNoteCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CreditNoteCancelled", "CreditNote", cn.ID, cn.TenantID),
		DocumentNumber:  cn.DocumentNumber,
		InvoiceID:       cn.InvoiceID,
	}
}
