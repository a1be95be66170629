package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/erp/receivables/internal/domain/ledger"
)

// GormUnitOfWork implements ledger.UnitOfWork on a gorm transaction. Every
// repository handed to fn shares the same transaction, so the work commits
// or rolls back as one.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Do runs fn inside a database transaction with transaction-bound repositories.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos ledger.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := ledger.Repositories{
			Invoices:         NewGormInvoiceRepository(tx),
			CreditNotes:      NewGormCreditNoteRepository(tx),
			BankTransactions: NewGormBankTransactionRepository(tx),
			Dunnings:         NewGormDunningRepository(tx),
		}
		return fn(ctx, repos)
	})
}

// Ensure GormUnitOfWork implements UnitOfWork
var _ ledger.UnitOfWork = (*GormUnitOfWork)(nil)
