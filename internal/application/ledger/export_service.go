package ledger

import (
	"context"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Posting account codes used on export rows. The receivables account is
// debited when an invoice is issued and credited when money arrives.
const (
	AccountReceivables = "1400"
	AccountRevenue     = "8400"
	AccountBank        = "1200"
	AccountVAT         = "1776"
)

// ExportService builds point-in-time snapshots of the ledger for reporting
// and for the downstream accounting export. Read-only.
type ExportService struct {
	uow    ledger.UnitOfWork
	logger *zap.Logger
}

// NewExportService creates a new ExportService
func NewExportService(uow ledger.UnitOfWork, logger *zap.Logger) *ExportService {
	return &ExportService{uow: uow, logger: logger}
}

// OpenItemLine is one invoice in the open-items report
type OpenItemLine struct {
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	DocumentNumber string          `json:"document_number"`
	CustomerName   string          `json:"customer_name"`
	CustomerNumber string          `json:"customer_number"`
	IssueDate      time.Time       `json:"issue_date"`
	DueDate        time.Time       `json:"due_date"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	OpenAmount     decimal.Decimal `json:"open_amount"`
	Status         string          `json:"status"`
	DunningLevel   int             `json:"dunning_level"`
	DaysOverdue    int             `json:"days_overdue"`
}

// OpenItemsReport is the aged snapshot of everything customers still owe
type OpenItemsReport struct {
	AsOf      time.Time       `json:"as_of"`
	Lines     []OpenItemLine  `json:"lines"`
	TotalOpen decimal.Decimal `json:"total_open"`
}

// OpenItems builds the open-items report: every non-cancelled invoice that
// still carries an open amount, with its derived status as of now
func (s *ExportService) OpenItems(ctx context.Context, tenantID uuid.UUID) (*OpenItemsReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "export", "open_items")
	defer span.End()

	now := time.Now()
	report := &OpenItemsReport{AsOf: now, TotalOpen: decimal.Zero}

	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		invoices, err := repos.Invoices.FindOpenItems(ctx, tenantID, ledger.InvoiceFilter{})
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			inv.RecomputeStatus(now)
			open := inv.OpenAmount()
			report.Lines = append(report.Lines, OpenItemLine{
				InvoiceID:      inv.ID,
				DocumentNumber: inv.DocumentNumber,
				CustomerName:   inv.CustomerName,
				CustomerNumber: inv.CustomerNumber,
				IssueDate:      inv.IssueDate,
				DueDate:        inv.DueDate,
				GrossAmount:    inv.GrossAmount,
				OpenAmount:     open,
				Status:         inv.Status.String(),
				DunningLevel:   inv.DunningLevel,
				DaysOverdue:    inv.DaysOverdue(now),
			})
			report.TotalOpen = report.TotalOpen.Add(open)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return report, nil
}

// GetOpenItemTotals returns the open invoice count and the summed open
// amount for a tenant. Feeds the periodic metrics gauges.
func (s *ExportService) GetOpenItemTotals(ctx context.Context, tenantID uuid.UUID) (int64, decimal.Decimal, error) {
	var count int64
	total := decimal.Zero

	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		invoices, err := repos.Invoices.FindOpenItems(ctx, tenantID, ledger.InvoiceFilter{})
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			open := inv.OpenAmount()
			if open.IsPositive() {
				count++
				total = total.Add(open)
			}
		}
		return nil
	})
	if err != nil {
		return 0, decimal.Zero, err
	}
	return count, total, nil
}

// ExportRow is one posting line for the downstream accounting system. The
// file format itself is produced elsewhere; this is the raw row data.
type ExportRow struct {
	PostingDate     time.Time       `json:"posting_date"`
	DocumentNumber  string          `json:"document_number"`
	AccountCode     string          `json:"account_code"`
	ContraAccount   string          `json:"contra_account"`
	Amount          decimal.Decimal `json:"amount"`
	DebitCredit     string          `json:"debit_credit"` // "D" or "C" on the receivables account
	CustomerNumber  string          `json:"customer_number"`
	Description     string          `json:"description"`
}

// AccountingExport builds the posting rows for a date range: one debit row
// per invoice issued, one credit row per payment received and per credit
// note issued. Reversed payments and cancelled documents produce no rows.
func (s *ExportService) AccountingExport(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]ExportRow, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "export", "accounting_export")
	defer span.End()

	var rows []ExportRow

	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		filter := ledger.InvoiceFilter{IssuedFrom: &from, IssuedTo: &to}
		invoices, err := repos.Invoices.FindAllForTenant(ctx, tenantID, filter)
		if err != nil {
			return err
		}

		for _, inv := range invoices {
			if inv.IsCancelled() {
				continue
			}
			rows = append(rows, ExportRow{
				PostingDate:    inv.IssueDate,
				DocumentNumber: inv.DocumentNumber,
				AccountCode:    AccountReceivables,
				ContraAccount:  AccountRevenue,
				Amount:         inv.GrossAmount,
				DebitCredit:    "D",
				CustomerNumber: inv.CustomerNumber,
				Description:    "Invoice " + inv.DocumentNumber,
			})

			for i := range inv.Payments {
				p := &inv.Payments[i]
				if !p.IsActive() {
					continue
				}
				if p.PaidAt.Before(from) || p.PaidAt.After(to) {
					continue
				}
				rows = append(rows, ExportRow{
					PostingDate:    p.PaidAt,
					DocumentNumber: inv.DocumentNumber,
					AccountCode:    AccountReceivables,
					ContraAccount:  AccountBank,
					Amount:         p.Amount,
					DebitCredit:    "C",
					CustomerNumber: inv.CustomerNumber,
					Description:    "Payment on " + inv.DocumentNumber,
				})
			}

			notes, err := repos.CreditNotes.FindByInvoice(ctx, tenantID, inv.ID)
			if err != nil {
				return err
			}
			for _, note := range notes {
				if !note.IsActive() {
					continue
				}
				if note.IssueDate.Before(from) || note.IssueDate.After(to) {
					continue
				}
				rows = append(rows, ExportRow{
					PostingDate:    note.IssueDate,
					DocumentNumber: note.DocumentNumber,
					AccountCode:    AccountReceivables,
					ContraAccount:  AccountRevenue,
					Amount:         note.Amount,
					DebitCredit:    "C",
					CustomerNumber: inv.CustomerNumber,
					Description:    "Credit note for " + inv.DocumentNumber,
				})
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return rows, nil
}
