package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DunningRecord is the durable trace of one dunning notice issued for one
// invoice. At most one record may exist per invoice per calendar day; the
// persistence layer enforces this with a unique constraint on
// (invoice_id, dunned_on).
type DunningRecord struct {
	shared.BaseEntity
	TenantID  uuid.UUID
	InvoiceID uuid.UUID
	Level     int
	DunnedOn  time.Time // Calendar date, truncated to day
	RunID     uuid.UUID
}

// NewDunningRecord creates a dunning record for the given run
func NewDunningRecord(tenantID, invoiceID uuid.UUID, level int, dunnedOn time.Time, runID uuid.UUID) (*DunningRecord, error) {
	if invoiceID == uuid.Nil {
		return nil, shared.NewValidationError("", "Invoice ID cannot be empty")
	}
	if level < 1 {
		return nil, shared.NewValidationError(invoiceID.String(), "Dunning level must be at least 1")
	}
	return &DunningRecord{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		InvoiceID:  invoiceID,
		Level:      level,
		DunnedOn:   startOfDay(dunnedOn),
		RunID:      runID,
	}, nil
}

// DunningCriteria filters the overdue invoices a dunning run will pick up
type DunningCriteria struct {
	MinDaysOverdue int
	MinOpenAmount  decimal.Decimal
	AsOf           time.Time
}

// QualifiesForDunning decides whether the invoice belongs in a dunning run.
// The status is recomputed against the run date first so an invoice whose
// persisted status has gone stale since its due date still qualifies.
func (inv *Invoice) QualifiesForDunning(criteria DunningCriteria) bool {
	if inv.IsCancelled() {
		return false
	}
	inv.RecomputeStatus(criteria.AsOf)
	if inv.Status != InvoiceStatusOverdue {
		return false
	}
	if inv.DaysOverdue(criteria.AsOf) < criteria.MinDaysOverdue {
		return false
	}
	return inv.OpenAmount().GreaterThanOrEqual(criteria.MinOpenAmount)
}

// SortDunningCandidates orders candidates the way the run processes them:
// oldest issue date first, ties broken by customer name without regard to case.
func SortDunningCandidates(invoices []*Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		if !invoices[i].IssueDate.Equal(invoices[j].IssueDate) {
			return invoices[i].IssueDate.Before(invoices[j].IssueDate)
		}
		return strings.ToLower(invoices[i].CustomerName) < strings.ToLower(invoices[j].CustomerName)
	})
}
