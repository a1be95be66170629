package persistence

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/persistence/models"
)

// GormInvoiceRepository implements ledger.InvoiceRepository using GORM.
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by its ID, payments included
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Preload("Payments").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(id.String(), "Invoice not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds an invoice by ID for a specific tenant
func (r *GormInvoiceRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ledger.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Preload("Payments").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(id.String(), "Invoice not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDsForUpdate loads the given invoices with FOR UPDATE row locks.
// Rows are locked in ascending ID order so that concurrent multi-invoice
// allocations acquire locks in the same sequence and cannot deadlock.
func (r *GormInvoiceRepository) FindByIDsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*ledger.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ordered := make([]uuid.UUID, len(ids))
	copy(ordered, ids)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})

	query := r.db.WithContext(ctx)
	// SQLite has no FOR UPDATE; its single-writer locking already
	// serializes concurrent allocations.
	if r.db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var invoiceModels []models.InvoiceModel
	if err := query.
		Where("tenant_id = ? AND id IN ?", tenantID, ordered).
		Order("id ASC").
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}

	// Locking does not preload associations, load payments separately.
	invoices := make([]*ledger.Invoice, len(invoiceModels))
	for i := range invoiceModels {
		var paymentModels []models.PaymentModel
		if err := r.db.WithContext(ctx).
			Where("invoice_id = ?", invoiceModels[i].ID).
			Find(&paymentModels).Error; err != nil {
			return nil, err
		}
		invoiceModels[i].Payments = paymentModels
		invoices[i] = invoiceModels[i].ToDomain()
	}
	return invoices, nil
}

// FindByDocumentNumber finds an invoice by document number for a tenant
func (r *GormInvoiceRepository) FindByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (*ledger.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Preload("Payments").
		Where("tenant_id = ? AND document_number = ?", tenantID, documentNumber).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(documentNumber, "Invoice not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds invoices for a tenant with filtering
func (r *GormInvoiceRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter ledger.InvoiceFilter) ([]*ledger.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Preload("Payments").
		Where("tenant_id = ?", tenantID)
	query = r.applyInvoiceFilter(query, filter)

	if err := query.Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toDomainInvoices(invoiceModels), nil
}

// FindDunningCandidates finds non-cancelled invoices with an open balance
// whose due date lies on or before the given date. The open balance check
// happens in the domain after status recomputation; this query only narrows
// the candidate set.
func (r *GormInvoiceRepository) FindDunningCandidates(ctx context.Context, tenantID uuid.UUID, dueBefore time.Time) ([]*ledger.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Preload("Payments").
		Where("tenant_id = ? AND due_date <= ? AND status NOT IN ?", tenantID, dueBefore,
			[]ledger.InvoiceStatus{ledger.InvoiceStatusPaid, ledger.InvoiceStatusCancelled}).
		Order("issue_date ASC").
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toDomainInvoices(invoiceModels), nil
}

// FindOpenItems finds all invoices that still carry an open amount
func (r *GormInvoiceRepository) FindOpenItems(ctx context.Context, tenantID uuid.UUID, filter ledger.InvoiceFilter) ([]*ledger.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Preload("Payments").
		Where("tenant_id = ? AND status NOT IN ?", tenantID,
			[]ledger.InvoiceStatus{ledger.InvoiceStatusPaid, ledger.InvoiceStatusCancelled})
	query = r.applyInvoiceFilter(query, filter)

	if err := query.Find(&invoiceModels).Error; err != nil {
		return nil, err
	}

	invoices := toDomainInvoices(invoiceModels)
	// The open amount is derived from payment and credit rows, so the
	// minimum-amount cut happens after loading.
	if filter.MinOpen != nil {
		filtered := invoices[:0]
		for _, inv := range invoices {
			if inv.OpenAmount().GreaterThanOrEqual(*filter.MinOpen) {
				filtered = append(filtered, inv)
			}
		}
		invoices = filtered
	}
	return invoices, nil
}

// Save creates or updates an invoice together with its payment rows
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *ledger.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Payments").Save(model).Error; err != nil {
			return err
		}
		return r.savePayments(tx, model)
	})
}

// SaveWithLock saves with optimistic locking. The update only applies when
// the stored version matches the version the aggregate was loaded with.
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *ledger.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.InvoiceModel{}).
			Where("id = ? AND version = ?", invoice.ID, invoice.Version-1).
			Select("*").Omit("id", "created_at", "Payments").
			Updates(model)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewConcurrencyError(invoice.ID.String(),
				"Invoice was modified by another transaction")
		}
		return r.savePayments(tx, model)
	})
}

// savePayments upserts the invoice's payment rows. Payments are append-only;
// existing rows only ever change status on reversal.
func (r *GormInvoiceRepository) savePayments(tx *gorm.DB, model *models.InvoiceModel) error {
	for i := range model.Payments {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&model.Payments[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// CountForTenant counts invoices for a tenant with optional filters
func (r *GormInvoiceRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter ledger.InvoiceFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("tenant_id = ?", tenantID)
	query = r.applyInvoiceFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyInvoiceFilter applies filter, ordering and pagination to the query
func (r *GormInvoiceRepository) applyInvoiceFilter(query *gorm.DB, filter ledger.InvoiceFilter) *gorm.DB {
	query = r.applyInvoiceFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	sortField := ValidateSortField(filter.OrderBy, InvoiceSortFields, "issue_date")
	query = query.Order(sortField + " " + ValidateSortOrder(filter.OrderDir))

	return query
}

// applyInvoiceFilterWithoutPagination applies filter options without pagination
func (r *GormInvoiceRepository) applyInvoiceFilterWithoutPagination(query *gorm.DB, filter ledger.InvoiceFilter) *gorm.DB {
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("document_number ILIKE ? OR customer_name ILIKE ? OR customer_number ILIKE ?",
			searchPattern, searchPattern, searchPattern)
	}

	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.IssuedFrom != nil {
		query = query.Where("issue_date >= ?", *filter.IssuedFrom)
	}
	if filter.IssuedTo != nil {
		query = query.Where("issue_date <= ?", *filter.IssuedTo)
	}
	if filter.DueFrom != nil {
		query = query.Where("due_date >= ?", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		query = query.Where("due_date <= ?", *filter.DueTo)
	}

	return query
}

func toDomainInvoices(invoiceModels []models.InvoiceModel) []*ledger.Invoice {
	invoices := make([]*ledger.Invoice, len(invoiceModels))
	for i := range invoiceModels {
		invoices[i] = invoiceModels[i].ToDomain()
	}
	return invoices
}

// Ensure GormInvoiceRepository implements InvoiceRepository
var _ ledger.InvoiceRepository = (*GormInvoiceRepository)(nil)
