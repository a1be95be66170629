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

// GormCreditNoteRepository implements ledger.CreditNoteRepository using GORM.
type GormCreditNoteRepository struct {
	db *gorm.DB
}

// NewGormCreditNoteRepository creates a new GormCreditNoteRepository
func NewGormCreditNoteRepository(db *gorm.DB) *GormCreditNoteRepository {
	return &GormCreditNoteRepository{db: db}
}

// FindByID finds a credit note by its ID
func (r *GormCreditNoteRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.CreditNote, error) {
	var model models.CreditNoteModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(id.String(), "Credit note not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds a credit note by ID for a specific tenant
func (r *GormCreditNoteRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ledger.CreditNote, error) {
	var model models.CreditNoteModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(id.String(), "Credit note not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoice finds all credit notes issued against an invoice
func (r *GormCreditNoteRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]*ledger.CreditNote, error) {
	var noteModels []models.CreditNoteModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("issue_date ASC").
		Find(&noteModels).Error; err != nil {
		return nil, err
	}
	notes := make([]*ledger.CreditNote, len(noteModels))
	for i := range noteModels {
		notes[i] = noteModels[i].ToDomain()
	}
	return notes, nil
}

// Save creates or updates a credit note
func (r *GormCreditNoteRepository) Save(ctx context.Context, note *ledger.CreditNote) error {
	model := models.CreditNoteModelFromDomain(note)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking
func (r *GormCreditNoteRepository) SaveWithLock(ctx context.Context, note *ledger.CreditNote) error {
	model := models.CreditNoteModelFromDomain(note)
	result := r.db.WithContext(ctx).
		Model(&models.CreditNoteModel{}).
		Where("id = ? AND version = ?", note.ID, note.Version-1).
		Select("*").Omit("id", "created_at").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewConcurrencyError(note.ID.String(),
			"Credit note was modified by another transaction")
	}
	return nil
}

// Ensure GormCreditNoteRepository implements CreditNoteRepository
var _ ledger.CreditNoteRepository = (*GormCreditNoteRepository)(nil)
