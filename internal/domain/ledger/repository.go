package ledger

import (
	"context"
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	CustomerID *uuid.UUID       // Filter by customer
	Status     *InvoiceStatus   // Filter by derived status
	IssuedFrom *time.Time       // Filter by issue date range start
	IssuedTo   *time.Time       // Filter by issue date range end
	DueFrom    *time.Time       // Filter by due date range start
	DueTo      *time.Time       // Filter by due date range end
	MinOpen    *decimal.Decimal // Filter by minimum open amount
	Search     string           // Free-text over document number, customer number and name
}

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// FindByID finds an invoice by ID, payments included
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByIDForTenant finds an invoice by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)

	// FindByIDsForUpdate loads the given invoices with row locks held, in
	// ascending ID order so concurrent multi-invoice allocations cannot
	// deadlock. Must be called inside a transaction.
	FindByIDsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*Invoice, error)

	// FindByDocumentNumber finds an invoice by document number for a tenant
	FindByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (*Invoice, error)

	// FindAllForTenant finds invoices for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) ([]*Invoice, error)

	// FindDunningCandidates finds non-cancelled invoices with an open
	// balance whose due date lies on or before the given date
	FindDunningCandidates(ctx context.Context, tenantID uuid.UUID, dueBefore time.Time) ([]*Invoice, error)

	// FindOpenItems finds all invoices that still carry an open amount
	FindOpenItems(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) ([]*Invoice, error)

	// Save creates or updates an invoice together with its payment rows
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, invoice *Invoice) error

	// CountForTenant counts invoices for a tenant with optional filters
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) (int64, error)
}

// CreditNoteRepository defines the interface for credit note persistence
type CreditNoteRepository interface {
	// FindByID finds a credit note by ID
	FindByID(ctx context.Context, id uuid.UUID) (*CreditNote, error)

	// FindByIDForTenant finds a credit note by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*CreditNote, error)

	// FindByInvoice finds all credit notes issued against an invoice
	FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]*CreditNote, error)

	// Save creates or updates a credit note
	Save(ctx context.Context, note *CreditNote) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, note *CreditNote) error
}

// BankTransactionFilter defines filtering options for bank transaction queries
type BankTransactionFilter struct {
	shared.Filter
	Status   *MatchStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// BankTransactionRepository defines the interface for bank transaction persistence
type BankTransactionRepository interface {
	// FindByID finds a bank transaction by ID
	FindByID(ctx context.Context, id uuid.UUID) (*BankTransaction, error)

	// FindByIDForTenant finds a bank transaction by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*BankTransaction, error)

	// FindAllForTenant finds bank transactions for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter BankTransactionFilter) ([]*BankTransaction, error)

	// Save creates or updates a bank transaction
	Save(ctx context.Context, tx *BankTransaction) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, tx *BankTransaction) error
}

// DunningRepository defines the interface for dunning record persistence
type DunningRepository interface {
	// FindByInvoice finds all dunning records for an invoice, newest first
	FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]*DunningRecord, error)

	// FindByRun finds all dunning records created by one dunning run
	FindByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]*DunningRecord, error)

	// ExistsForDay reports whether a dunning record already exists for the
	// invoice on the given calendar day
	ExistsForDay(ctx context.Context, tenantID, invoiceID uuid.UUID, day time.Time) (bool, error)

	// Create inserts a dunning record. Returns a duplicate error if a
	// record for the same invoice and day already exists.
	Create(ctx context.Context, record *DunningRecord) error
}

// UnitOfWork runs a function with a repository set bound to one database
// transaction. Everything done through the repositories inside fn commits or
// rolls back together.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Repositories is the set of ledger repositories sharing one transaction
type Repositories struct {
	Invoices         InvoiceRepository
	CreditNotes      CreditNoteRepository
	BankTransactions BankTransactionRepository
	Dunnings         DunningRepository
}
