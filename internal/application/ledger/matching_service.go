package ledger

import (
	"context"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MatchingService proposes invoices for incoming bank transactions. It is
// strictly read-only; committing a suggestion goes through the
// AllocationService.
type MatchingService struct {
	uow     ledger.UnitOfWork
	matcher *ledger.MatchService
	logger  *zap.Logger
}

// NewMatchingService creates a new MatchingService
func NewMatchingService(uow ledger.UnitOfWork, logger *zap.Logger) *MatchingService {
	return &MatchingService{
		uow:     uow,
		matcher: ledger.NewMatchService(),
		logger:  logger,
	}
}

// SuggestMatches ranks open invoices as candidates for the transaction.
// Candidates come from the current open items; the ranked result is advisory
// and goes to an operator for confirmation.
func (s *MatchingService) SuggestMatches(ctx context.Context, tenantID, transactionID uuid.UUID) ([]ledger.MatchSuggestion, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "matching", "suggest_matches")
	defer span.End()
	telemetry.SetAttribute(span, "transaction_id", transactionID.String())

	var suggestions []ledger.MatchSuggestion
	err := s.uow.Do(ctx, func(ctx context.Context, repos ledger.Repositories) error {
		tx, err := repos.BankTransactions.FindByIDForTenant(ctx, tenantID, transactionID)
		if err != nil {
			return err
		}

		candidates, err := repos.Invoices.FindOpenItems(ctx, tenantID, ledger.InvoiceFilter{})
		if err != nil {
			return err
		}

		suggestions = s.matcher.SuggestMatches(tx, candidates)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Debug("match suggestions computed",
		zap.String("transaction_id", transactionID.String()),
		zap.Int("suggestions", len(suggestions)),
	)

	return suggestions, nil
}
