package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/persistence/models"
)

// GormBankTransactionRepository implements ledger.BankTransactionRepository using GORM.
type GormBankTransactionRepository struct {
	db *gorm.DB
}

// NewGormBankTransactionRepository creates a new GormBankTransactionRepository
func NewGormBankTransactionRepository(db *gorm.DB) *GormBankTransactionRepository {
	return &GormBankTransactionRepository{db: db}
}

// FindByID finds a bank transaction by its ID
func (r *GormBankTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.BankTransaction, error) {
	var model models.BankTransactionModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(id.String(), "Bank transaction not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds a bank transaction by ID for a specific tenant
func (r *GormBankTransactionRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ledger.BankTransaction, error) {
	var model models.BankTransactionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(id.String(), "Bank transaction not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds bank transactions for a tenant with filtering
func (r *GormBankTransactionRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter ledger.BankTransactionFilter) ([]*ledger.BankTransaction, error) {
	var txModels []models.BankTransactionModel
	query := r.db.WithContext(ctx).Model(&models.BankTransactionModel{}).
		Where("tenant_id = ?", tenantID)

	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("counterparty_name ILIKE ? OR reference ILIKE ?",
			searchPattern, searchPattern)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.DateFrom != nil {
		query = query.Where("value_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("value_date <= ?", *filter.DateTo)
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}
	sortField := ValidateSortField(filter.OrderBy, BankTransactionSortFields, "value_date")
	query = query.Order(sortField + " " + ValidateSortOrder(filter.OrderDir))

	if err := query.Find(&txModels).Error; err != nil {
		return nil, err
	}
	txs := make([]*ledger.BankTransaction, len(txModels))
	for i := range txModels {
		txs[i] = txModels[i].ToDomain()
	}
	return txs, nil
}

// Save creates or updates a bank transaction
func (r *GormBankTransactionRepository) Save(ctx context.Context, tx *ledger.BankTransaction) error {
	model := models.BankTransactionModelFromDomain(tx)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking
func (r *GormBankTransactionRepository) SaveWithLock(ctx context.Context, tx *ledger.BankTransaction) error {
	model := models.BankTransactionModelFromDomain(tx)
	result := r.db.WithContext(ctx).
		Model(&models.BankTransactionModel{}).
		Where("id = ? AND version = ?", tx.ID, tx.Version-1).
		Select("*").Omit("id", "created_at").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewConcurrencyError(tx.ID.String(),
			"Bank transaction was modified by another transaction")
	}
	return nil
}

// Ensure GormBankTransactionRepository implements BankTransactionRepository
var _ ledger.BankTransactionRepository = (*GormBankTransactionRepository)(nil)
