package ledger

import (
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceCreatedEvent is published when a new invoice enters the ledger
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	DocumentNumber string          `json:"document_number"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	DueDate        string          `json:"due_date"`
}

// NewInvoiceCreatedEvent creates a new invoice created event
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCreated", "Invoice", inv.ID, inv.TenantID),
		DocumentNumber:  inv.DocumentNumber,
		CustomerID:      inv.CustomerID,
		GrossAmount:     inv.GrossAmount,
		DueDate:         inv.DueDate.Format("2006-01-02"),
	}
}

// PaymentRecordedEvent is published when a payment is applied to an invoice
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID  uuid.UUID       `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
	OpenAmount decimal.Decimal `json:"open_amount"`
	Status     string          `json:"status"`
}

// NewPaymentRecordedEvent creates a new payment recorded event
func NewPaymentRecordedEvent(inv *Invoice, payment *Payment) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PaymentRecorded", "Invoice", inv.ID, inv.TenantID),
		PaymentID:       payment.ID,
		Amount:          payment.Amount,
		OpenAmount:      inv.OpenAmount(),
		Status:          inv.Status.String(),
	}
}

// PaymentReversedEvent is published when a payment is reversed
type PaymentReversedEvent struct {
	shared.BaseDomainEvent
	PaymentID  uuid.UUID       `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	OpenAmount decimal.Decimal `json:"open_amount"`
}

// NewPaymentReversedEvent creates a new payment reversed event
func NewPaymentReversedEvent(inv *Invoice, payment *Payment) *PaymentReversedEvent {
	return &PaymentReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PaymentReversed", "Invoice", inv.ID, inv.TenantID),
		PaymentID:       payment.ID,
		Amount:          payment.Amount,
		Reason:          payment.ReversalReason,
		OpenAmount:      inv.OpenAmount(),
	}
}

// InvoicePaidEvent is published when an invoice reaches fully paid status
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	DocumentNumber string          `json:"document_number"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
}

// NewInvoicePaidEvent creates a new invoice paid event
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaid", "Invoice", inv.ID, inv.TenantID),
		DocumentNumber:  inv.DocumentNumber,
		GrossAmount:     inv.GrossAmount,
	}
}

// InvoiceCancelledEvent is published when an invoice is voided
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	DocumentNumber string `json:"document_number"`
	Reason         string `json:"reason"`
}

// NewInvoiceCancelledEvent creates a new invoice cancelled event
func NewInvoiceCancelledEvent(inv *Invoice) *InvoiceCancelledEvent {
	return &InvoiceCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCancelled", "Invoice", inv.ID, inv.TenantID),
		DocumentNumber:  inv.DocumentNumber,
		Reason:          inv.CancelReason,
	}
}

// InvoiceDunnedEvent is published when a dunning notice is issued for an invoice
type InvoiceDunnedEvent struct {
	shared.BaseDomainEvent
	DocumentNumber string          `json:"document_number"`
	DunningLevel   int             `json:"dunning_level"`
	OpenAmount     decimal.Decimal `json:"open_amount"`
	DaysOverdue    int             `json:"days_overdue"`
}

// NewInvoiceDunnedEvent creates a new invoice dunned event
func NewInvoiceDunnedEvent(inv *Invoice, daysOverdue int) *InvoiceDunnedEvent {
	return &InvoiceDunnedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceDunned", "Invoice", inv.ID, inv.TenantID),
		DocumentNumber:  inv.DocumentNumber,
		DunningLevel:    inv.DunningLevel,
		OpenAmount:      inv.OpenAmount(),
		DaysOverdue:     daysOverdue,
	}
}
