package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerService owns the invoice lifecycle: creating invoices, recording
// payments and credit notes against them and cancelling them. Every mutation
// runs inside one transaction and saves the invoice with an optimistic lock.
type LedgerService struct {
	uow       ledger.UnitOfWork
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(uow ledger.UnitOfWork, publisher shared.EventPublisher, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		uow:       uow,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateInvoiceRequest carries the data the order module supplies when an
// order has been invoiced
type CreateInvoiceRequest struct {
	TenantID       uuid.UUID
	DocumentNumber string
	CustomerID     uuid.UUID
	CustomerName   string
	CustomerNumber string
	IssueDate      time.Time
	DueDate        time.Time
	NetAmount      decimal.Decimal
	VATAmount      decimal.Decimal
	GrossAmount    decimal.Decimal
	SourceOrderID  *uuid.UUID
	OperatorID     *uuid.UUID
}

// CreateInvoice registers a new invoice in the open-item ledger
func (s *LedgerService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*ledger.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "create_invoice")
	defer span.End()

	net := valueobject.NewMoneyEUR(req.NetAmount)
	vat := valueobject.NewMoneyEUR(req.VATAmount)
	gross := valueobject.NewMoneyEUR(req.GrossAmount)

	invoice, err := ledger.NewInvoice(
		req.TenantID,
		req.DocumentNumber,
		req.CustomerID,
		req.CustomerName,
		req.CustomerNumber,
		req.IssueDate,
		req.DueDate,
		net, vat, gross,
		req.SourceOrderID,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.OperatorID != nil {
		invoice.SetCreatedBy(*req.OperatorID)
	}

	err = s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		existing, err := repos.Invoices.FindByDocumentNumber(ctx, req.TenantID, req.DocumentNumber)
		if err != nil && !shared.IsNotFoundError(err) {
			return fmt.Errorf("failed to check document number: %w", err)
		}
		if existing != nil {
			return shared.NewDuplicateError(req.DocumentNumber, "An invoice with this document number already exists")
		}
		return repos.Invoices.Save(ctx, invoice)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publishEvents(ctx, invoice.GetDomainEvents())
	invoice.ClearDomainEvents()

	s.logger.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("document_number", invoice.DocumentNumber),
		zap.String("gross_amount", invoice.GrossAmount.StringFixed(2)),
	)

	return invoice, nil
}

// RecordPaymentRequest carries a manual payment entry
type RecordPaymentRequest struct {
	TenantID          uuid.UUID
	InvoiceID         uuid.UUID
	Amount            decimal.Decimal
	PaidAt            time.Time
	BankTransactionID *uuid.UUID
	OperatorID        uuid.UUID
}

// RecordPayment applies a payment to an invoice. The payment row, the
// invoice status and the version check all commit in one transaction.
func (s *LedgerService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*ledger.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "record_payment")
	defer span.End()
	telemetry.SetAttribute(span, "invoice_id", req.InvoiceID.String())

	var payment *ledger.Payment
	var events []shared.DomainEvent

	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		invoice, err := repos.Invoices.FindByIDForTenant(ctx, req.TenantID, req.InvoiceID)
		if err != nil {
			return err
		}

		payment, err = invoice.RecordPayment(valueobject.NewMoneyEUR(req.Amount), req.PaidAt, req.BankTransactionID, req.OperatorID)
		if err != nil {
			return err
		}

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

	s.logger.Info("payment recorded",
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)

	return payment, nil
}

// ReversePaymentRequest identifies a payment to reverse
type ReversePaymentRequest struct {
	TenantID  uuid.UUID
	InvoiceID uuid.UUID
	PaymentID uuid.UUID
	Reason    string
}

// ReversePayment voids a payment without deleting it and restores the open
// amount. If the payment came from a bank transaction, the allocated amount
// flows back to that transaction in the same commit.
func (s *LedgerService) ReversePayment(ctx context.Context, req ReversePaymentRequest) (*ledger.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "reverse_payment")
	defer span.End()

	var payment *ledger.Payment
	var events []shared.DomainEvent

	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		invoice, err := repos.Invoices.FindByIDForTenant(ctx, req.TenantID, req.InvoiceID)
		if err != nil {
			return err
		}

		payment, err = invoice.ReversePayment(req.PaymentID, req.Reason)
		if err != nil {
			return err
		}

		if payment.BankTransactionID != nil {
			tx, err := repos.BankTransactions.FindByIDForTenant(ctx, req.TenantID, *payment.BankTransactionID)
			if err != nil {
				return err
			}
			if err := tx.Release(payment.Amount); err != nil {
				return err
			}
			if err := repos.BankTransactions.SaveWithLock(ctx, tx); err != nil {
				return err
			}
		}

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

	s.logger.Info("payment reversed",
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("payment_id", req.PaymentID.String()),
		zap.String("reason", req.Reason),
	)

	return payment, nil
}

// CreateCreditNoteRequest carries a credit note entry, typically from a
// processed return
type CreateCreditNoteRequest struct {
	TenantID       uuid.UUID
	DocumentNumber string
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	Reason         string
	IssueDate      time.Time
	OperatorID     *uuid.UUID
}

// CreateCreditNote issues a credit note against an invoice and reduces its
// open amount in the same transaction
func (s *LedgerService) CreateCreditNote(ctx context.Context, req CreateCreditNoteRequest) (*ledger.CreditNote, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "create_credit_note")
	defer span.End()
	telemetry.SetAttribute(span, "invoice_id", req.InvoiceID.String())

	var note *ledger.CreditNote
	var events []shared.DomainEvent

	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		invoice, err := repos.Invoices.FindByIDForTenant(ctx, req.TenantID, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.IsCancelled() {
			return shared.NewInvalidStateError(invoice.ID.String(), "Cannot credit a cancelled invoice")
		}

		note, err = ledger.NewCreditNote(req.TenantID, req.DocumentNumber, req.InvoiceID,
			valueobject.NewMoneyEUR(req.Amount), req.Reason, req.IssueDate)
		if err != nil {
			return err
		}
		if req.OperatorID != nil {
			note.SetCreatedBy(*req.OperatorID)
		}

		if err := invoice.ApplyCredit(note.GetAmountMoney()); err != nil {
			return err
		}

		if err := repos.CreditNotes.Save(ctx, note); err != nil {
			return err
		}
		if err := repos.Invoices.SaveWithLock(ctx, invoice); err != nil {
			return err
		}

		events = append(invoice.GetDomainEvents(), note.GetDomainEvents()...)
		invoice.ClearDomainEvents()
		note.ClearDomainEvents()
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publishEvents(ctx, events)

	s.logger.Info("credit note created",
		zap.String("credit_note_id", note.ID.String()),
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("amount", note.Amount.StringFixed(2)),
	)

	return note, nil
}

// CancelCreditNote voids a credit note and restores the credited amount on
// the invoice
func (s *LedgerService) CancelCreditNote(ctx context.Context, tenantID, creditNoteID uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "cancel_credit_note")
	defer span.End()

	var events []shared.DomainEvent

	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		note, err := repos.CreditNotes.FindByIDForTenant(ctx, tenantID, creditNoteID)
		if err != nil {
			return err
		}
		if err := note.Cancel(); err != nil {
			return err
		}

		invoice, err := repos.Invoices.FindByIDForTenant(ctx, tenantID, note.InvoiceID)
		if err != nil {
			return err
		}
		if err := invoice.ReleaseCredit(note.GetAmountMoney()); err != nil {
			return err
		}

		if err := repos.CreditNotes.SaveWithLock(ctx, note); err != nil {
			return err
		}
		if err := repos.Invoices.SaveWithLock(ctx, invoice); err != nil {
			return err
		}

		events = append(note.GetDomainEvents(), invoice.GetDomainEvents()...)
		note.ClearDomainEvents()
		invoice.ClearDomainEvents()
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.publishEvents(ctx, events)
	return nil
}

// CancelInvoice voids an invoice. Payments and credit notes stay in place as
// history; the invoice drops out of dunning and the open-item totals.
func (s *LedgerService) CancelInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID, reason string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "cancel_invoice")
	defer span.End()
	telemetry.SetAttribute(span, "invoice_id", invoiceID.String())

	var events []shared.DomainEvent

	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		invoice, err := repos.Invoices.FindByIDForTenant(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if err := invoice.Cancel(reason); err != nil {
			return err
		}
		if err := repos.Invoices.SaveWithLock(ctx, invoice); err != nil {
			return err
		}
		events = invoice.GetDomainEvents()
		invoice.ClearDomainEvents()
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.publishEvents(ctx, events)

	s.logger.Info("invoice cancelled",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("reason", reason),
	)

	return nil
}

// GetInvoice loads one invoice with its payments
func (s *LedgerService) GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*ledger.Invoice, error) {
	var invoice *ledger.Invoice
	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		var err error
		invoice, err = repos.Invoices.FindByIDForTenant(ctx, tenantID, invoiceID)
		return err
	})
	return invoice, err
}

// ListInvoices returns invoices for a tenant with filtering and the total count
func (s *LedgerService) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter ledger.InvoiceFilter) ([]*ledger.Invoice, int64, error) {
	var invoices []*ledger.Invoice
	var total int64
	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		var err error
		invoices, err = repos.Invoices.FindAllForTenant(ctx, tenantID, filter)
		if err != nil {
			return err
		}
		total, err = repos.Invoices.CountForTenant(ctx, tenantID, filter)
		return err
	})
	return invoices, total, err
}

// ListCreditNotes returns the credit notes issued against an invoice
func (s *LedgerService) ListCreditNotes(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]*ledger.CreditNote, error) {
	var notes []*ledger.CreditNote
	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		var err error
		notes, err = repos.CreditNotes.FindByInvoice(ctx, tenantID, invoiceID)
		return err
	})
	return notes, err
}

func (s *LedgerService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	for _, event := range events {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish domain event",
				zap.String("event_type", event.EventType()),
				zap.Error(err),
			)
		}
	}
}
