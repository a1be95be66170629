package ledger

import (
	"fmt"
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchStatus tracks how much of an incoming bank transaction has been
// allocated to invoices
type MatchStatus string

const (
	MatchStatusUnmatched        MatchStatus = "UNMATCHED"
	MatchStatusPartiallyMatched MatchStatus = "PARTIALLY_MATCHED"
	MatchStatusMatched          MatchStatus = "MATCHED"
)

// IsValid checks if the status is a valid MatchStatus
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchStatusUnmatched, MatchStatusPartiallyMatched, MatchStatusMatched:
		return true
	}
	return false
}

// String returns the string representation of MatchStatus
func (s MatchStatus) String() string {
	return string(s)
}

// BankTransaction is an incoming payment as reported by the bank. It is
// imported once and then allocated, in one or more steps, against invoices.
// The transaction never knows which invoices it settled; the payment records
// on the invoices point back at it.
type BankTransaction struct {
	shared.TenantAggregateRoot
	Amount           decimal.Decimal
	Currency         valueobject.Currency
	ValueDate        time.Time
	CounterpartyName string
	CounterpartyIBAN string
	Reference        string
	MatchedAmount    decimal.Decimal
	Status           MatchStatus
}

// NewBankTransaction imports a bank transaction into the ledger
func NewBankTransaction(
	tenantID uuid.UUID,
	amount valueobject.Money,
	valueDate time.Time,
	counterpartyName string,
	counterpartyIBAN string,
	reference string,
) (*BankTransaction, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("", "Transaction amount must be positive")
	}
	if counterpartyName == "" {
		return nil, shared.NewValidationError("", "Counterparty name cannot be empty")
	}

	return &BankTransaction{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Amount:              amount.Amount(),
		Currency:            amount.Currency(),
		ValueDate:           valueDate,
		CounterpartyName:    counterpartyName,
		CounterpartyIBAN:    counterpartyIBAN,
		Reference:           reference,
		MatchedAmount:       decimal.Zero,
		Status:              MatchStatusUnmatched,
	}, nil
}

// RemainingAmount returns the portion of the transaction not yet allocated
func (bt *BankTransaction) RemainingAmount() decimal.Decimal {
	return bt.Amount.Sub(bt.MatchedAmount)
}

// IsFullyMatched returns true when the remaining amount is within tolerance of zero
func (bt *BankTransaction) IsFullyMatched() bool {
	return bt.RemainingAmount().LessThanOrEqual(Epsilon)
}

// Allocate consumes part of the transaction's remaining amount. The caller
// records the matching payments on the invoices in the same transaction.
func (bt *BankTransaction) Allocate(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError(bt.ID.String(), "Allocation amount must be positive")
	}
	remaining := bt.RemainingAmount()
	if amount.GreaterThan(remaining.Add(Epsilon)) {
		return shared.NewOverpaymentError(bt.ID.String(), fmt.Sprintf(
			"Allocation amount %s exceeds remaining transaction amount %s",
			amount.StringFixed(2), remaining.StringFixed(2)))
	}

	bt.MatchedAmount = bt.MatchedAmount.Add(amount)
	bt.recomputeStatus()
	bt.UpdatedAt = time.Now()
	bt.IncrementVersion()

	return nil
}

// Release returns a previously allocated amount to the transaction, used
// when a payment funded by this transaction is reversed.
func (bt *BankTransaction) Release(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewValidationError(bt.ID.String(), "Release amount must be positive")
	}
	if amount.GreaterThan(bt.MatchedAmount.Add(Epsilon)) {
		return shared.NewValidationError(bt.ID.String(), fmt.Sprintf(
			"Cannot release %s: only %s has been allocated",
			amount.StringFixed(2), bt.MatchedAmount.StringFixed(2)))
	}

	bt.MatchedAmount = bt.MatchedAmount.Sub(amount)
	bt.recomputeStatus()
	bt.UpdatedAt = time.Now()
	bt.IncrementVersion()

	return nil
}

func (bt *BankTransaction) recomputeStatus() {
	switch {
	case bt.IsFullyMatched():
		bt.Status = MatchStatusMatched
	case bt.MatchedAmount.GreaterThan(decimal.Zero):
		bt.Status = MatchStatusPartiallyMatched
	default:
		bt.Status = MatchStatusUnmatched
	}
}

// GetAmountMoney returns the transaction amount as Money
func (bt *BankTransaction) GetAmountMoney() valueobject.Money {
	m, err := valueobject.NewMoney(bt.Amount, bt.Currency)
	if err != nil {
		return valueobject.NewMoneyEUR(bt.Amount)
	}
	return m
}
