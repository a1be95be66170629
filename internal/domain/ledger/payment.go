package ledger

import (
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle of a payment record
type PaymentStatus string

const (
	PaymentStatusActive   PaymentStatus = "ACTIVE"
	PaymentStatusReversed PaymentStatus = "REVERSED"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusActive || s == PaymentStatusReversed
}

// Payment is an append-only settlement record on an invoice. Payments are
// never updated or deleted; a wrong payment is reversed, which keeps the
// original row and its reversal both visible in the audit trail.
type Payment struct {
	shared.BaseEntity
	InvoiceID         uuid.UUID
	Amount            decimal.Decimal
	Currency          valueobject.Currency
	PaidAt            time.Time
	BankTransactionID *uuid.UUID
	Status            PaymentStatus
	ReversedAt        *time.Time
	ReversalReason    string
	CreatedBy         uuid.UUID
}

// NewPayment creates an active payment record. Validation of the amount
// against the invoice happens in Invoice.RecordPayment.
func NewPayment(invoiceID uuid.UUID, amount valueobject.Money, paidAt time.Time, bankTransactionID *uuid.UUID, createdBy uuid.UUID) *Payment {
	return &Payment{
		BaseEntity:        shared.NewBaseEntity(),
		InvoiceID:         invoiceID,
		Amount:            amount.Amount(),
		Currency:          amount.Currency(),
		PaidAt:            paidAt,
		BankTransactionID: bankTransactionID,
		Status:            PaymentStatusActive,
		CreatedBy:         createdBy,
	}
}

// IsActive returns true if the payment still counts toward the settled total
func (p *Payment) IsActive() bool {
	return p.Status == PaymentStatusActive
}

// Reverse marks the payment as reversed. Reversing an already reversed
// payment is an invalid state transition.
func (p *Payment) Reverse(reason string) error {
	if p.Status == PaymentStatusReversed {
		return shared.NewInvalidStateError(p.ID.String(), "Payment is already reversed")
	}
	if reason == "" {
		return shared.NewValidationError(p.ID.String(), "Reversal reason is required")
	}
	now := time.Now()
	p.Status = PaymentStatusReversed
	p.ReversedAt = &now
	p.ReversalReason = reason
	p.UpdatedAt = now
	return nil
}

// GetAmountMoney returns the payment amount as Money
func (p *Payment) GetAmountMoney() valueobject.Money {
	m, err := valueobject.NewMoney(p.Amount, p.Currency)
	if err != nil {
		return valueobject.NewMoneyEUR(p.Amount)
	}
	return m
}
