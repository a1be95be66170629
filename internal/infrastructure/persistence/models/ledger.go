package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Payment rows live in their own table and load with the invoice.
type InvoiceModel struct {
	TenantAggregateModel
	DocumentNumber string               `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoice_tenant_document,priority:2"`
	CustomerID     uuid.UUID            `gorm:"type:uuid;not null;index"`
	CustomerName   string               `gorm:"type:varchar(200);not null"`
	CustomerNumber string               `gorm:"type:varchar(50)"`
	IssueDate      time.Time            `gorm:"not null;index"`
	DueDate        time.Time            `gorm:"not null;index"`
	NetAmount      decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	VATAmount      decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	GrossAmount    decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	CreditedAmount decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	Status         ledger.InvoiceStatus `gorm:"type:varchar(20);not null;index"`
	SourceOrderID  *uuid.UUID           `gorm:"type:uuid;index"`
	DunningLevel   int                  `gorm:"not null;default:0"`
	LastDunnedAt   *time.Time
	CancelledAt    *time.Time
	CancelReason   string         `gorm:"type:varchar(500)"`
	Payments       []PaymentModel `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *ledger.Invoice {
	inv := &ledger.Invoice{
		DocumentNumber: m.DocumentNumber,
		CustomerID:     m.CustomerID,
		CustomerName:   m.CustomerName,
		CustomerNumber: m.CustomerNumber,
		IssueDate:      m.IssueDate,
		DueDate:        m.DueDate,
		NetAmount:      m.NetAmount,
		VATAmount:      m.VATAmount,
		GrossAmount:    m.GrossAmount,
		CreditedAmount: m.CreditedAmount,
		Status:         m.Status,
		SourceOrderID:  m.SourceOrderID,
		DunningLevel:   m.DunningLevel,
		LastDunnedAt:   m.LastDunnedAt,
		CancelledAt:    m.CancelledAt,
		CancelReason:   m.CancelReason,
		Payments:       make([]ledger.Payment, len(m.Payments)),
	}
	m.PopulateTenantAggregateRoot(&inv.TenantAggregateRoot)
	for i := range m.Payments {
		inv.Payments[i] = *m.Payments[i].ToDomain()
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice.
func (m *InvoiceModel) FromDomain(inv *ledger.Invoice) {
	m.FromDomainTenantAggregateRoot(inv.TenantAggregateRoot)
	m.DocumentNumber = inv.DocumentNumber
	m.CustomerID = inv.CustomerID
	m.CustomerName = inv.CustomerName
	m.CustomerNumber = inv.CustomerNumber
	m.IssueDate = inv.IssueDate
	m.DueDate = inv.DueDate
	m.NetAmount = inv.NetAmount
	m.VATAmount = inv.VATAmount
	m.GrossAmount = inv.GrossAmount
	m.CreditedAmount = inv.CreditedAmount
	m.Status = inv.Status
	m.SourceOrderID = inv.SourceOrderID
	m.DunningLevel = inv.DunningLevel
	m.LastDunnedAt = inv.LastDunnedAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
	m.Payments = make([]PaymentModel, len(inv.Payments))
	for i := range inv.Payments {
		m.Payments[i].FromDomain(&inv.Payments[i])
	}
}

// InvoiceModelFromDomain creates a persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *ledger.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentModel is the persistence model for payment rows on an invoice.
type PaymentModel struct {
	BaseModel
	InvoiceID         uuid.UUID            `gorm:"type:uuid;not null;index"`
	Amount            decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	Currency          string               `gorm:"type:varchar(3);not null"`
	PaidAt            time.Time            `gorm:"not null"`
	BankTransactionID *uuid.UUID           `gorm:"type:uuid;index"`
	Status            ledger.PaymentStatus `gorm:"type:varchar(20);not null"`
	ReversedAt        *time.Time
	ReversalReason    string    `gorm:"type:varchar(500)"`
	CreatedBy         uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "invoice_payments"
}

// ToDomain converts the persistence model to a domain Payment.
func (m *PaymentModel) ToDomain() *ledger.Payment {
	return &ledger.Payment{
		BaseEntity:        m.BaseModel.ToDomain(),
		InvoiceID:         m.InvoiceID,
		Amount:            m.Amount,
		Currency:          valueobject.Currency(m.Currency),
		PaidAt:            m.PaidAt,
		BankTransactionID: m.BankTransactionID,
		Status:            m.Status,
		ReversedAt:        m.ReversedAt,
		ReversalReason:    m.ReversalReason,
		CreatedBy:         m.CreatedBy,
	}
}

// FromDomain populates the persistence model from a domain Payment.
func (m *PaymentModel) FromDomain(p *ledger.Payment) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.InvoiceID = p.InvoiceID
	m.Amount = p.Amount
	m.Currency = string(p.Currency)
	m.PaidAt = p.PaidAt
	m.BankTransactionID = p.BankTransactionID
	m.Status = p.Status
	m.ReversedAt = p.ReversedAt
	m.ReversalReason = p.ReversalReason
	m.CreatedBy = p.CreatedBy
}

// CreditNoteModel is the persistence model for the CreditNote aggregate root.
type CreditNoteModel struct {
	TenantAggregateModel
	DocumentNumber string                  `gorm:"type:varchar(50);not null;uniqueIndex:idx_credit_note_tenant_document,priority:2"`
	InvoiceID      uuid.UUID               `gorm:"type:uuid;not null;index"`
	Amount         decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	Currency       string                  `gorm:"type:varchar(3);not null"`
	Reason         string                  `gorm:"type:text"`
	IssueDate      time.Time               `gorm:"not null"`
	Status         ledger.CreditNoteStatus `gorm:"type:varchar(20);not null;index"`
	CancelledAt    *time.Time
}

// TableName returns the table name for GORM
func (CreditNoteModel) TableName() string {
	return "credit_notes"
}

// ToDomain converts the persistence model to a domain CreditNote.
func (m *CreditNoteModel) ToDomain() *ledger.CreditNote {
	cn := &ledger.CreditNote{
		DocumentNumber: m.DocumentNumber,
		InvoiceID:      m.InvoiceID,
		Amount:         m.Amount,
		Currency:       valueobject.Currency(m.Currency),
		Reason:         m.Reason,
		IssueDate:      m.IssueDate,
		Status:         m.Status,
		CancelledAt:    m.CancelledAt,
	}
	m.PopulateTenantAggregateRoot(&cn.TenantAggregateRoot)
	return cn
}

// FromDomain populates the persistence model from a domain CreditNote.
func (m *CreditNoteModel) FromDomain(cn *ledger.CreditNote) {
	m.FromDomainTenantAggregateRoot(cn.TenantAggregateRoot)
	m.DocumentNumber = cn.DocumentNumber
	m.InvoiceID = cn.InvoiceID
	m.Amount = cn.Amount
	m.Currency = string(cn.Currency)
	m.Reason = cn.Reason
	m.IssueDate = cn.IssueDate
	m.Status = cn.Status
	m.CancelledAt = cn.CancelledAt
}

// CreditNoteModelFromDomain creates a persistence model from a domain CreditNote.
func CreditNoteModelFromDomain(cn *ledger.CreditNote) *CreditNoteModel {
	m := &CreditNoteModel{}
	m.FromDomain(cn)
	return m
}

// BankTransactionModel is the persistence model for the BankTransaction aggregate root.
type BankTransactionModel struct {
	TenantAggregateModel
	Amount           decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	Currency         string             `gorm:"type:varchar(3);not null"`
	ValueDate        time.Time          `gorm:"not null;index"`
	CounterpartyName string             `gorm:"type:varchar(200);not null"`
	CounterpartyIBAN string             `gorm:"type:varchar(34)"`
	Reference        string             `gorm:"type:text"`
	MatchedAmount    decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	Status           ledger.MatchStatus `gorm:"type:varchar(20);not null;index"`
}

// TableName returns the table name for GORM
func (BankTransactionModel) TableName() string {
	return "bank_transactions"
}

// ToDomain converts the persistence model to a domain BankTransaction.
func (m *BankTransactionModel) ToDomain() *ledger.BankTransaction {
	tx := &ledger.BankTransaction{
		Amount:           m.Amount,
		Currency:         valueobject.Currency(m.Currency),
		ValueDate:        m.ValueDate,
		CounterpartyName: m.CounterpartyName,
		CounterpartyIBAN: m.CounterpartyIBAN,
		Reference:        m.Reference,
		MatchedAmount:    m.MatchedAmount,
		Status:           m.Status,
	}
	m.PopulateTenantAggregateRoot(&tx.TenantAggregateRoot)
	return tx
}

// FromDomain populates the persistence model from a domain BankTransaction.
func (m *BankTransactionModel) FromDomain(tx *ledger.BankTransaction) {
	m.FromDomainTenantAggregateRoot(tx.TenantAggregateRoot)
	m.Amount = tx.Amount
	m.Currency = string(tx.Currency)
	m.ValueDate = tx.ValueDate
	m.CounterpartyName = tx.CounterpartyName
	m.CounterpartyIBAN = tx.CounterpartyIBAN
	m.Reference = tx.Reference
	m.MatchedAmount = tx.MatchedAmount
	m.Status = tx.Status
}

// BankTransactionModelFromDomain creates a persistence model from a domain BankTransaction.
func BankTransactionModelFromDomain(tx *ledger.BankTransaction) *BankTransactionModel {
	m := &BankTransactionModel{}
	m.FromDomain(tx)
	return m
}

// DunningRecordModel is the persistence model for dunning records. The unique
// index on invoice and day enforces at most one notice per invoice per
// calendar day.
type DunningRecordModel struct {
	BaseModel
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	InvoiceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_dunning_invoice_day,priority:1"`
	Level     int       `gorm:"not null"`
	DunnedOn  time.Time `gorm:"not null;uniqueIndex:idx_dunning_invoice_day,priority:2"`
	RunID     uuid.UUID `gorm:"type:uuid;not null;index"`
}

// TableName returns the table name for GORM
func (DunningRecordModel) TableName() string {
	return "dunning_records"
}

// ToDomain converts the persistence model to a domain DunningRecord.
func (m *DunningRecordModel) ToDomain() *ledger.DunningRecord {
	return &ledger.DunningRecord{
		BaseEntity: m.BaseModel.ToDomain(),
		TenantID:   m.TenantID,
		InvoiceID:  m.InvoiceID,
		Level:      m.Level,
		DunnedOn:   m.DunnedOn,
		RunID:      m.RunID,
	}
}

// FromDomain populates the persistence model from a domain DunningRecord.
func (m *DunningRecordModel) FromDomain(r *ledger.DunningRecord) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.TenantID = r.TenantID
	m.InvoiceID = r.InvoiceID
	m.Level = r.Level
	m.DunnedOn = r.DunnedOn
	m.RunID = r.RunID
}
