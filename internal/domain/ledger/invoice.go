package ledger

import (
	"fmt"
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Epsilon is the monetary comparison tolerance. All amounts are fixed-point
// decimals with 2 fractional digits; the tolerance only absorbs rounding, it
// never hides a meaningful difference.
var Epsilon = decimal.New(1, -2) // 0.01

// InvoiceStatus represents the derived settlement status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusOpen          InvoiceStatus = "OPEN"           // No payments or credits yet, not past due
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID" // Some amount settled, balance remains
	InvoiceStatusPaid          InvoiceStatus = "PAID"           // Open amount within tolerance of zero
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"        // Past due date with a remaining balance
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"      // Voided; kept for audit, excluded from open items
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusOpen, InvoiceStatusPartiallyPaid, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsSettledOrVoid returns true when the invoice carries no open amount anymore
func (s InvoiceStatus) IsSettledOrVoid() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// Invoice is the aggregate root of the open-item ledger. It tracks the money
// a customer owes for one billing document and every settlement applied to it.
// Invoices are never hard-deleted; cancellation is a state transition.
type Invoice struct {
	shared.TenantAggregateRoot
	DocumentNumber string
	CustomerID     uuid.UUID
	CustomerName   string
	CustomerNumber string
	IssueDate      time.Time
	DueDate        time.Time
	NetAmount      decimal.Decimal
	VATAmount      decimal.Decimal
	GrossAmount    decimal.Decimal
	CreditedAmount decimal.Decimal // Running sum of active credit notes
	Status         InvoiceStatus
	SourceOrderID  *uuid.UUID
	DunningLevel   int
	LastDunnedAt   *time.Time
	CancelledAt    *time.Time
	CancelReason   string
	Payments       []Payment
}

// NewInvoice creates a new invoice in the ledger.
// The gross amount must equal net + vat within tolerance and no amount may be
// negative; violations surface as VALIDATION_ERROR.
func NewInvoice(
	tenantID uuid.UUID,
	documentNumber string,
	customerID uuid.UUID,
	customerName string,
	customerNumber string,
	issueDate time.Time,
	dueDate time.Time,
	net, vat, gross valueobject.Money,
	sourceOrderID *uuid.UUID,
) (*Invoice, error) {
	if documentNumber == "" {
		return nil, shared.NewValidationError("", "Document number cannot be empty")
	}
	if len(documentNumber) > 50 {
		return nil, shared.NewValidationError(documentNumber, "Document number cannot exceed 50 characters")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError(documentNumber, "Customer ID cannot be empty")
	}
	if customerName == "" {
		return nil, shared.NewValidationError(documentNumber, "Customer name cannot be empty")
	}
	if net.Currency() != vat.Currency() || net.Currency() != gross.Currency() {
		return nil, shared.NewValidationError(documentNumber, "Net, VAT and gross amounts must share one currency")
	}
	if net.IsNegative() || vat.IsNegative() || gross.IsNegative() {
		return nil, shared.NewValidationError(documentNumber, "Amounts cannot be negative")
	}
	if net.Amount().Add(vat.Amount()).Sub(gross.Amount()).Abs().GreaterThan(Epsilon) {
		return nil, shared.NewValidationError(documentNumber, fmt.Sprintf(
			"Gross amount %s does not equal net %s + VAT %s",
			gross.StringFixed(2), net.StringFixed(2), vat.StringFixed(2)))
	}

	inv := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		DocumentNumber:      documentNumber,
		CustomerID:          customerID,
		CustomerName:        customerName,
		CustomerNumber:      customerNumber,
		IssueDate:           issueDate,
		DueDate:             dueDate,
		NetAmount:           net.Amount(),
		VATAmount:           vat.Amount(),
		GrossAmount:         gross.Amount(),
		CreditedAmount:      decimal.Zero,
		DunningLevel:        0,
		SourceOrderID:       sourceOrderID,
		Payments:            make([]Payment, 0),
	}
	inv.RecomputeStatus(time.Now())

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

// ActivePaymentTotal returns the sum of all non-reversed payments
func (inv *Invoice) ActivePaymentTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range inv.Payments {
		if inv.Payments[i].IsActive() {
			total = total.Add(inv.Payments[i].Amount)
		}
	}
	return total
}

// OpenAmount returns the unsettled portion of the invoice:
// gross minus active payments minus active credit notes.
func (inv *Invoice) OpenAmount() decimal.Decimal {
	return inv.GrossAmount.Sub(inv.ActivePaymentTotal()).Sub(inv.CreditedAmount)
}

// RemainingCreditable returns how much may still be credited against this
// invoice before the cumulative credit-note total would exceed the gross.
func (inv *Invoice) RemainingCreditable() decimal.Decimal {
	return inv.GrossAmount.Sub(inv.CreditedAmount)
}

// IsCancelled returns true if the invoice has been cancelled
func (inv *Invoice) IsCancelled() bool {
	return inv.CancelledAt != nil
}

// HasAllocations returns true once any payment or credit has been applied
func (inv *Invoice) HasAllocations() bool {
	return inv.ActivePaymentTotal().GreaterThan(decimal.Zero) || inv.CreditedAmount.GreaterThan(decimal.Zero)
}

// RecordPayment applies a payment against the open amount and recomputes the
// derived status. The payment is append-only history; it is returned so the
// caller can persist it alongside the invoice inside one transaction.
func (inv *Invoice) RecordPayment(amount valueobject.Money, paidAt time.Time, bankTransactionID *uuid.UUID, createdBy uuid.UUID) (*Payment, error) {
	if inv.IsCancelled() {
		return nil, shared.NewInvalidStateError(inv.ID.String(), "Cannot record payment on a cancelled invoice")
	}
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError(inv.ID.String(), "Payment amount must be positive")
	}
	open := inv.OpenAmount()
	if amount.Amount().GreaterThan(open.Add(Epsilon)) {
		return nil, shared.NewOverpaymentError(inv.ID.String(), fmt.Sprintf(
			"Payment amount %s exceeds open amount %s", amount.StringFixed(2), open.StringFixed(2)))
	}

	payment := NewPayment(inv.ID, amount, paidAt, bankTransactionID, createdBy)
	inv.Payments = append(inv.Payments, *payment)

	now := time.Now()
	inv.RecomputeStatus(now)
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewPaymentRecordedEvent(inv, payment))
	if inv.Status == InvoiceStatusPaid {
		inv.AddDomainEvent(NewInvoicePaidEvent(inv))
	}

	return payment, nil
}

// ReversePayment marks a previously recorded payment as reversed and
// restores the open amount. The payment row stays in place for the audit
// trail; only its status changes.
func (inv *Invoice) ReversePayment(paymentID uuid.UUID, reason string) (*Payment, error) {
	for i := range inv.Payments {
		if inv.Payments[i].ID == paymentID {
			if err := inv.Payments[i].Reverse(reason); err != nil {
				return nil, err
			}
			now := time.Now()
			inv.RecomputeStatus(now)
			inv.UpdatedAt = now
			inv.IncrementVersion()
			inv.AddDomainEvent(NewPaymentReversedEvent(inv, &inv.Payments[i]))
			return &inv.Payments[i], nil
		}
	}
	return nil, shared.NewNotFoundError(paymentID.String(), "Payment not found on invoice")
}

// ApplyCredit reduces the open amount by a credit note. The credit must fit
// the remaining creditable balance (cumulative credits never exceed gross) and
// the current open amount (a credited invoice never goes meaningfully
// negative; refunds are a separate flow).
func (inv *Invoice) ApplyCredit(amount valueobject.Money) error {
	if inv.IsCancelled() {
		return shared.NewInvalidStateError(inv.ID.String(), "Cannot apply credit to a cancelled invoice")
	}
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError(inv.ID.String(), "Credit amount must be positive")
	}
	if amount.Amount().GreaterThan(inv.RemainingCreditable().Add(Epsilon)) {
		return shared.NewValidationError(inv.ID.String(), fmt.Sprintf(
			"Credit amount %s exceeds remaining creditable balance %s",
			amount.StringFixed(2), inv.RemainingCreditable().StringFixed(2)))
	}
	open := inv.OpenAmount()
	if amount.Amount().GreaterThan(open.Add(Epsilon)) {
		return shared.NewValidationError(inv.ID.String(), fmt.Sprintf(
			"Credit amount %s exceeds open amount %s", amount.StringFixed(2), open.StringFixed(2)))
	}

	inv.CreditedAmount = inv.CreditedAmount.Add(amount.Amount())

	now := time.Now()
	inv.RecomputeStatus(now)
	inv.UpdatedAt = now
	inv.IncrementVersion()

	if inv.Status == InvoiceStatusPaid {
		inv.AddDomainEvent(NewInvoicePaidEvent(inv))
	}

	return nil
}

// ReleaseCredit reverses a previously applied credit, used when the credit
// note itself is cancelled. History stays in the credit-note record.
func (inv *Invoice) ReleaseCredit(amount valueobject.Money) error {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError(inv.ID.String(), "Credit amount must be positive")
	}
	if amount.Amount().GreaterThan(inv.CreditedAmount.Add(Epsilon)) {
		return shared.NewValidationError(inv.ID.String(), fmt.Sprintf(
			"Cannot release credit %s: only %s has been credited",
			amount.StringFixed(2), inv.CreditedAmount.StringFixed(2)))
	}

	inv.CreditedAmount = inv.CreditedAmount.Sub(amount.Amount())

	now := time.Now()
	inv.RecomputeStatus(now)
	inv.UpdatedAt = now
	inv.IncrementVersion()

	return nil
}

// Cancel voids the invoice. Recorded payments and credit notes remain as
// history; the invoice drops out of dunning eligibility and open-item totals.
func (inv *Invoice) Cancel(reason string) error {
	if inv.IsCancelled() {
		return shared.NewInvalidStateError(inv.ID.String(), "Invoice is already cancelled")
	}
	if reason == "" {
		return shared.NewValidationError(inv.ID.String(), "Cancel reason is required")
	}

	now := time.Now()
	inv.CancelledAt = &now
	inv.CancelReason = reason
	inv.RecomputeStatus(now)
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceCancelledEvent(inv))

	return nil
}

// RecomputeStatus derives the status from the current state. The derivation
// is deterministic: the cancelled flag wins outright, then a near-zero open
// amount means paid, then a past due date means overdue, then the presence of
// any allocation separates partially paid from open.
func (inv *Invoice) RecomputeStatus(asOf time.Time) {
	switch {
	case inv.IsCancelled():
		inv.Status = InvoiceStatusCancelled
	case inv.OpenAmount().LessThanOrEqual(Epsilon):
		inv.Status = InvoiceStatusPaid
	case startOfDay(inv.DueDate).Before(startOfDay(asOf)):
		inv.Status = InvoiceStatusOverdue
	case !inv.HasAllocations():
		inv.Status = InvoiceStatusOpen
	default:
		inv.Status = InvoiceStatusPartiallyPaid
	}
}

// DaysOverdue returns the number of whole days past the due date (0 if not past due)
func (inv *Invoice) DaysOverdue(asOf time.Time) int {
	days := int(startOfDay(asOf).Sub(startOfDay(inv.DueDate)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// MarkDunned increments the dunning level and stamps the last dunning date.
// Called by the dunning run after a DunningRecord has been created.
func (inv *Invoice) MarkDunned(dunnedAt time.Time) {
	inv.DunningLevel++
	inv.LastDunnedAt = &dunnedAt
	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()
}

// GetGrossAmountMoney returns the gross amount as Money
func (inv *Invoice) GetGrossAmountMoney() valueobject.Money {
	return valueobject.NewMoneyEUR(inv.GrossAmount)
}

// GetOpenAmountMoney returns the open amount as Money
func (inv *Invoice) GetOpenAmountMoney() valueobject.Money {
	return valueobject.NewMoneyEUR(inv.OpenAmount())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
