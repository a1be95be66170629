package ledger

import (
	"context"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DunningService selects overdue invoices and issues dunning records for
// them. A run is not one big transaction: every invoice commits on its own,
// so a crash mid-run leaves only finished dunnings behind and the run can be
// re-executed safely thanks to the per-day duplicate check.
type DunningService struct {
	uow       ledger.UnitOfWork
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewDunningService creates a new DunningService
func NewDunningService(uow ledger.UnitOfWork, publisher shared.EventPublisher, logger *zap.Logger) *DunningService {
	return &DunningService{
		uow:       uow,
		publisher: publisher,
		logger:    logger,
	}
}

// SelectCandidates returns the invoices a dunning run would pick up right
// now, ordered oldest issue date first. Read-only.
func (s *DunningService) SelectCandidates(ctx context.Context, tenantID uuid.UUID, minDaysOverdue int, minOpenAmount decimal.Decimal) ([]*ledger.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "dunning", "select_candidates")
	defer span.End()

	criteria := ledger.DunningCriteria{
		MinDaysOverdue: minDaysOverdue,
		MinOpenAmount:  minOpenAmount,
		AsOf:           time.Now(),
	}

	var candidates []*ledger.Invoice
	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		dueBefore := criteria.AsOf.AddDate(0, 0, -criteria.MinDaysOverdue)
		invoices, err := repos.Invoices.FindDunningCandidates(ctx, tenantID, dueBefore)
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			if inv.QualifiesForDunning(criteria) {
				candidates = append(candidates, inv)
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	ledger.SortDunningCandidates(candidates)
	return candidates, nil
}

// CreateDunning issues one dunning record for one invoice in its own
// transaction. At most one escalation per invoice per calendar day; a second
// call on the same day fails with a duplicate error and changes nothing.
func (s *DunningService) CreateDunning(ctx context.Context, tenantID, invoiceID, runID uuid.UUID) (*ledger.DunningRecord, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "dunning", "create_dunning")
	defer span.End()
	telemetry.SetAttribute(span, "invoice_id", invoiceID.String())

	var record *ledger.DunningRecord
	var events []shared.DomainEvent

	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		invoice, err := repos.Invoices.FindByIDForTenant(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if invoice.IsCancelled() {
			return shared.NewInvalidStateError(invoiceID.String(), "Cannot dun a cancelled invoice")
		}

		today := time.Now()
		exists, err := repos.Dunnings.ExistsForDay(ctx, tenantID, invoiceID, today)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewDuplicateError(invoiceID.String(), "Invoice has already been dunned today")
		}

		record, err = ledger.NewDunningRecord(tenantID, invoiceID, invoice.DunningLevel+1, today, runID)
		if err != nil {
			return err
		}
		// The unique constraint on (invoice_id, dunned_on) backs up the
		// existence check under concurrency
		if err := repos.Dunnings.Create(ctx, record); err != nil {
			return err
		}

		daysOverdue := invoice.DaysOverdue(today)
		invoice.MarkDunned(today)
		invoice.AddDomainEvent(ledger.NewInvoiceDunnedEvent(invoice, daysOverdue))
		if err := repos.Invoices.SaveWithLock(ctx, invoice); err != nil {
			return err
		}

		events = invoice.GetDomainEvents()
		invoice.ClearDomainEvents()
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publishEvents(ctx, events)
	return record, nil
}

// DunningRunResult summarizes one batch run
type DunningRunResult struct {
	RunID     uuid.UUID            `json:"run_id"`
	Selected  int                  `json:"selected"`
	Dunned    int                  `json:"dunned"`
	Failed    int                  `json:"failed"`
	Aborted   bool                 `json:"aborted"`
	Failures  []DunningRunFailure  `json:"failures,omitempty"`
	StartedAt time.Time            `json:"started_at"`
	Records   []*ledger.DunningRecord `json:"-"`
}

// DunningRunFailure records one invoice the run could not dun
type DunningRunFailure struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Error     string    `json:"error"`
}

// Run executes a dunning batch: select the candidates, then dun each one in
// its own transaction. A failure on one invoice is recorded and the run
// continues; a cancelled context aborts between invoices without leaving
// partial per-invoice state.
func (s *DunningService) Run(ctx context.Context, tenantID uuid.UUID, minDaysOverdue int, minOpenAmount decimal.Decimal) (*DunningRunResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "dunning", "run")
	defer span.End()

	result := &DunningRunResult{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}

	candidates, err := s.SelectCandidates(ctx, tenantID, minDaysOverdue, minOpenAmount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result.Selected = len(candidates)

	for _, invoice := range candidates {
		select {
		case <-ctx.Done():
			result.Aborted = true
			s.logger.Warn("dunning run aborted",
				zap.String("run_id", result.RunID.String()),
				zap.Int("dunned", result.Dunned),
				zap.Int("remaining", result.Selected-result.Dunned-result.Failed),
			)
			return result, nil
		default:
		}

		record, err := s.CreateDunning(ctx, tenantID, invoice.ID, result.RunID)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, DunningRunFailure{
				InvoiceID: invoice.ID,
				Error:     err.Error(),
			})
			s.logger.Warn("dunning failed for invoice",
				zap.String("run_id", result.RunID.String()),
				zap.String("invoice_id", invoice.ID.String()),
				zap.Error(err),
			)
			continue
		}
		result.Dunned++
		result.Records = append(result.Records, record)
	}

	s.logger.Info("dunning run finished",
		zap.String("run_id", result.RunID.String()),
		zap.Int("selected", result.Selected),
		zap.Int("dunned", result.Dunned),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

// History returns the dunning records for one invoice, newest first
func (s *DunningService) History(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]*ledger.DunningRecord, error) {
	var records []*ledger.DunningRecord
	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		var err error
		records, err = repos.Dunnings.FindByInvoice(ctx, tenantID, invoiceID)
		return err
	})
	return records, err
}

func (s *DunningService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	for _, event := range events {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish domain event",
				zap.String("event_type", event.EventType()),
				zap.Error(err),
			)
		}
	}
}
