package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AllocationService distributes an incoming bank transaction across one or
// more invoices. An allocation call is all-or-nothing: either every requested
// payment commits together with the updated invoices and transaction, or the
// database state is untouched.
type AllocationService struct {
	uow         ledger.UnitOfWork
	publisher   shared.EventPublisher
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	logger      *zap.Logger
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(
	uow ledger.UnitOfWork,
	publisher shared.EventPublisher,
	idempotency shared.IdempotencyStore,
	idemConfig shared.IdempotencyConfig,
	logger *zap.Logger,
) *AllocationService {
	return &AllocationService{
		uow:         uow,
		publisher:   publisher,
		idempotency: idempotency,
		idemConfig:  idemConfig,
		logger:      logger,
	}
}

// AllocationLine assigns an amount from the transaction to one invoice
type AllocationLine struct {
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
}

// AllocateRequest is one atomic allocation command
type AllocateRequest struct {
	TenantID       uuid.UUID
	TransactionID  uuid.UUID
	Allocations    []AllocationLine
	OperatorID     uuid.UUID
	IdempotencyKey string // Optional; replays of the same key are rejected
}

// Allocate applies the requested amounts against the invoices. Invoices are
// locked in ascending ID order so two concurrent allocations over overlapping
// invoice sets cannot deadlock. Validation failures on any line roll back the
// whole call.
func (s *AllocationService) Allocate(ctx context.Context, req AllocateRequest) ([]*ledger.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "allocate_transaction")
	defer span.End()
	telemetry.SetAttribute(span, "transaction_id", req.TransactionID.String())
	telemetry.SetAttribute(span, "allocation_count", fmt.Sprintf("%d", len(req.Allocations)))

	if err := validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	// The key is claimed up front so two concurrent replays cannot both run,
	// and released again if the transaction does not commit.
	keyClaimed := false
	if req.IdempotencyKey != "" && s.idemConfig.Enabled {
		fresh, err := s.idempotency.MarkProcessed(ctx, allocationIdempotencyKey(req), s.idemConfig.TTL)
		if err != nil {
			s.logger.Warn("idempotency store unavailable, continuing without replay protection", zap.Error(err))
		} else if !fresh {
			return nil, shared.NewDuplicateError(req.TransactionID.String(), "This allocation request has already been processed")
		} else {
			keyClaimed = true
		}
	}

	var payments []*ledger.Payment
	var events []shared.DomainEvent

	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		tx, err := repos.BankTransactions.FindByIDForTenant(ctx, req.TenantID, req.TransactionID)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, line := range req.Allocations {
			total = total.Add(line.Amount)
		}
		if total.GreaterThan(tx.RemainingAmount().Add(ledger.Epsilon)) {
			return shared.NewOverpaymentError(tx.ID.String(), fmt.Sprintf(
				"Allocation total %s exceeds remaining transaction amount %s",
				total.StringFixed(2), tx.RemainingAmount().StringFixed(2)))
		}

		// Fixed lock order over the invoice set
		ids := make([]uuid.UUID, 0, len(req.Allocations))
		amountByInvoice := make(map[uuid.UUID]decimal.Decimal, len(req.Allocations))
		for _, line := range req.Allocations {
			ids = append(ids, line.InvoiceID)
			amountByInvoice[line.InvoiceID] = line.Amount
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

		invoices, err := repos.Invoices.FindByIDsForUpdate(ctx, req.TenantID, ids)
		if err != nil {
			return err
		}
		if len(invoices) != len(ids) {
			return shared.NewNotFoundError(req.TransactionID.String(), "One or more invoices do not exist")
		}

		now := time.Now()
		payments = make([]*ledger.Payment, 0, len(invoices))
		for _, invoice := range invoices {
			amount := amountByInvoice[invoice.ID]
			payment, err := invoice.RecordPayment(valueobject.NewMoneyEUR(amount), now, &tx.ID, req.OperatorID)
			if err != nil {
				return err
			}
			payments = append(payments, payment)

			if err := repos.Invoices.SaveWithLock(ctx, invoice); err != nil {
				return err
			}
			events = append(events, invoice.GetDomainEvents()...)
			invoice.ClearDomainEvents()
		}

		if err := tx.Allocate(total); err != nil {
			return err
		}
		return repos.BankTransactions.SaveWithLock(ctx, tx)
	})
	if err != nil {
		if keyClaimed {
			if unmarkErr := s.idempotency.Unmark(ctx, allocationIdempotencyKey(req)); unmarkErr != nil {
				s.logger.Warn("failed to release idempotency key after rollback",
					zap.String("transaction_id", req.TransactionID.String()),
					zap.Error(unmarkErr),
				)
			}
		}
		telemetry.RecordError(span, err)
		payments = nil
		return nil, err
	}

	s.publishEvents(ctx, events)

	s.logger.Info("transaction allocated",
		zap.String("transaction_id", req.TransactionID.String()),
		zap.Int("payments", len(payments)),
	)

	return payments, nil
}

// ImportTransactionRequest carries one bank feed entry
type ImportTransactionRequest struct {
	TenantID         uuid.UUID
	Amount           decimal.Decimal
	ValueDate        time.Time
	CounterpartyName string
	CounterpartyIBAN string
	Reference        string
}

// ImportTransaction registers an incoming bank transaction for later matching
func (s *AllocationService) ImportTransaction(ctx context.Context, req ImportTransactionRequest) (*ledger.BankTransaction, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "import_transaction")
	defer span.End()

	tx, err := ledger.NewBankTransaction(
		req.TenantID,
		valueobject.NewMoneyEUR(req.Amount),
		req.ValueDate,
		req.CounterpartyName,
		req.CounterpartyIBAN,
		req.Reference,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	err = s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		return repos.BankTransactions.Save(ctx, tx)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return tx, nil
}

// GetTransaction loads one bank transaction
func (s *AllocationService) GetTransaction(ctx context.Context, tenantID, txID uuid.UUID) (*ledger.BankTransaction, error) {
	var tx *ledger.BankTransaction
	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		var err error
		tx, err = repos.BankTransactions.FindByIDForTenant(ctx, tenantID, txID)
		return err
	})
	return tx, err
}

// ListTransactions returns bank transactions for a tenant with filtering
func (s *AllocationService) ListTransactions(ctx context.Context, tenantID uuid.UUID, filter ledger.BankTransactionFilter) ([]*ledger.BankTransaction, error) {
	var txs []*ledger.BankTransaction
	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		var err error
		txs, err = repos.BankTransactions.FindAllForTenant(ctx, tenantID, filter)
		return err
	})
	return txs, err
}

func validateRequest(req AllocateRequest) error {
	if len(req.Allocations) == 0 {
		return shared.NewValidationError(req.TransactionID.String(), "Allocation list cannot be empty")
	}
	seen := make(map[uuid.UUID]struct{}, len(req.Allocations))
	for _, line := range req.Allocations {
		if line.InvoiceID == uuid.Nil {
			return shared.NewValidationError(req.TransactionID.String(), "Allocation invoice ID cannot be empty")
		}
		if line.Amount.LessThanOrEqual(decimal.Zero) {
			return shared.NewValidationError(line.InvoiceID.String(), "Allocation amount must be positive")
		}
		if _, dup := seen[line.InvoiceID]; dup {
			return shared.NewValidationError(line.InvoiceID.String(), "An invoice may appear only once per allocation call")
		}
		seen[line.InvoiceID] = struct{}{}
	}
	return nil
}

func allocationIdempotencyKey(req AllocateRequest) string {
	return fmt.Sprintf("allocation:%s:%s:%s", req.TenantID, req.TransactionID, req.IdempotencyKey)
}

func (s *AllocationService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	for _, event := range events {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish domain event",
				zap.String("event_type", event.EventType()),
				zap.Error(err),
			)
		}
	}
}
