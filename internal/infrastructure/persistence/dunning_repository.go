package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/persistence/models"
)

// GormDunningRepository implements ledger.DunningRepository using GORM.
type GormDunningRepository struct {
	db *gorm.DB
}

// NewGormDunningRepository creates a new GormDunningRepository
func NewGormDunningRepository(db *gorm.DB) *GormDunningRepository {
	return &GormDunningRepository{db: db}
}

// FindByInvoice finds all dunning records for an invoice, newest first
func (r *GormDunningRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]*ledger.DunningRecord, error) {
	var recordModels []models.DunningRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("dunned_on DESC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	return toDomainDunningRecords(recordModels), nil
}

// FindByRun finds all dunning records created by one dunning run
func (r *GormDunningRepository) FindByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]*ledger.DunningRecord, error) {
	var recordModels []models.DunningRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND run_id = ?", tenantID, runID).
		Order("created_at ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	return toDomainDunningRecords(recordModels), nil
}

// ExistsForDay reports whether a dunning record already exists for the
// invoice on the given calendar day
func (r *GormDunningRepository) ExistsForDay(ctx context.Context, tenantID, invoiceID uuid.UUID, day time.Time) (bool, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DunningRecordModel{}).
		Where("tenant_id = ? AND invoice_id = ? AND dunned_on = ?", tenantID, invoiceID, dayStart).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a dunning record. The unique index on (invoice_id, dunned_on)
// turns a same-day insert into DUPLICATE_ERROR.
func (r *GormDunningRepository) Create(ctx context.Context, record *ledger.DunningRecord) error {
	model := &models.DunningRecordModel{}
	model.FromDomain(record)

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDuplicateError(record.InvoiceID.String(),
				"Invoice was already dunned today")
		}
		return err
	}
	return nil
}

func toDomainDunningRecords(recordModels []models.DunningRecordModel) []*ledger.DunningRecord {
	records := make([]*ledger.DunningRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records
}

// Ensure GormDunningRepository implements DunningRepository
var _ ledger.DunningRepository = (*GormDunningRepository)(nil)
