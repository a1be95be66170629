package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDunningFixture() (*DunningService, *fakeUnitOfWork, *capturingPublisher) {
	uow := newFakeUnitOfWork()
	publisher := &capturingPublisher{}
	svc := NewDunningService(uow, publisher, zap.NewNop())
	return svc, uow, publisher
}

func seedOverdue(t *testing.T, uow *fakeUnitOfWork, tenantID uuid.UUID, docNumber, customer string, gross float64, daysOverdue int) *ledger.Invoice {
	inv, err := ledger.NewInvoice(
		tenantID, docNumber, uuid.New(), customer, "C-"+docNumber,
		time.Now().AddDate(0, 0, -daysOverdue-30), time.Now().AddDate(0, 0, -daysOverdue),
		valueobject.NewMoneyEURFromFloat(gross), valueobject.ZeroEUR(), valueobject.NewMoneyEURFromFloat(gross),
		nil,
	)
	require.NoError(t, err)
	inv.ClearDomainEvents()
	uow.seedInvoice(inv)
	return inv
}

func TestDunningService_SelectCandidates(t *testing.T) {
	svc, uow, _ := newDunningFixture()
	tenantID := uuid.New()

	qualifying := seedOverdue(t, uow, tenantID, "R-1", "Berg GmbH", 100.00, 14)
	seedOverdue(t, uow, tenantID, "R-2", "Adler Apotheke", 100.00, 2)   // not overdue long enough
	seedOverdue(t, uow, tenantID, "R-3", "Sonnen Apotheke", 3.00, 30)   // open amount too small
	cancelled := seedOverdue(t, uow, tenantID, "R-4", "Anker KG", 100.00, 30)

	inv := uow.invoice(cancelled.ID)
	require.NoError(t, inv.Cancel("void"))
	inv.ClearDomainEvents()
	uow.seedInvoice(inv)

	candidates, err := svc.SelectCandidates(context.Background(), tenantID, 7, decimal.NewFromFloat(5.00))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, qualifying.ID, candidates[0].ID)
}

func TestDunningService_SelectCandidates_Ordering(t *testing.T) {
	svc, uow, _ := newDunningFixture()
	tenantID := uuid.New()

	second := seedOverdue(t, uow, tenantID, "R-1", "Berg GmbH", 100.00, 20)
	first := seedOverdue(t, uow, tenantID, "R-2", "Adler Apotheke", 100.00, 40)

	// R-2 was issued earlier, so it leads the run
	firstInv := uow.invoice(first.ID)
	secondInv := uow.invoice(second.ID)
	require.True(t, firstInv.IssueDate.Before(secondInv.IssueDate))

	candidates, err := svc.SelectCandidates(context.Background(), tenantID, 7, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, first.ID, candidates[0].ID)
	assert.Equal(t, second.ID, candidates[1].ID)
}

func TestDunningService_CreateDunning(t *testing.T) {
	svc, uow, publisher := newDunningFixture()
	tenantID := uuid.New()
	inv := seedOverdue(t, uow, tenantID, "R-1", "Berg GmbH", 100.00, 14)

	record, err := svc.CreateDunning(context.Background(), tenantID, inv.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, record.Level)

	stored := uow.invoice(inv.ID)
	assert.Equal(t, 1, stored.DunningLevel)
	assert.NotNil(t, stored.LastDunnedAt)
	assert.Contains(t, publisher.eventTypes(), "InvoiceDunned")
}

func TestDunningService_CreateDunning_SameDayDuplicate(t *testing.T) {
	svc, uow, _ := newDunningFixture()
	tenantID := uuid.New()
	inv := seedOverdue(t, uow, tenantID, "R-1", "Berg GmbH", 100.00, 14)

	_, err := svc.CreateDunning(context.Background(), tenantID, inv.ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.CreateDunning(context.Background(), tenantID, inv.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, shared.IsDuplicateError(err))

	// One success and one duplicate, never two records or two levels
	assert.Equal(t, 1, uow.dunningCount())
	assert.Equal(t, 1, uow.invoice(inv.ID).DunningLevel)
}

func TestDunningService_CreateDunning_Cancelled(t *testing.T) {
	svc, uow, _ := newDunningFixture()
	tenantID := uuid.New()
	seeded := seedOverdue(t, uow, tenantID, "R-1", "Berg GmbH", 100.00, 14)

	inv := uow.invoice(seeded.ID)
	require.NoError(t, inv.Cancel("void"))
	inv.ClearDomainEvents()
	uow.seedInvoice(inv)

	_, err := svc.CreateDunning(context.Background(), tenantID, seeded.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, shared.IsInvalidStateError(err))
}

func TestDunningService_Run(t *testing.T) {
	svc, uow, _ := newDunningFixture()
	tenantID := uuid.New()
	inv1 := seedOverdue(t, uow, tenantID, "R-1", "Berg GmbH", 100.00, 14)
	inv2 := seedOverdue(t, uow, tenantID, "R-2", "Adler Apotheke", 200.00, 21)

	result, err := svc.Run(context.Background(), tenantID, 7, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Selected)
	assert.Equal(t, 2, result.Dunned)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, result.Aborted)

	assert.Equal(t, 1, uow.invoice(inv1.ID).DunningLevel)
	assert.Equal(t, 1, uow.invoice(inv2.ID).DunningLevel)
}

func TestDunningService_Run_ContinuesAfterFailure(t *testing.T) {
	svc, uow, _ := newDunningFixture()
	tenantID := uuid.New()
	already := seedOverdue(t, uow, tenantID, "R-1", "Adler Apotheke", 100.00, 40)
	fresh := seedOverdue(t, uow, tenantID, "R-2", "Berg GmbH", 200.00, 14)

	// R-1 was already dunned today, so the run records a failure for it and
	// still duns R-2
	_, err := svc.CreateDunning(context.Background(), tenantID, already.ID, uuid.New())
	require.NoError(t, err)

	result, err := svc.Run(context.Background(), tenantID, 7, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Selected)
	assert.Equal(t, 1, result.Dunned)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, already.ID, result.Failures[0].InvoiceID)

	assert.Equal(t, 1, uow.invoice(fresh.ID).DunningLevel)
	assert.Equal(t, 1, uow.invoice(already.ID).DunningLevel)
}

func TestDunningService_Run_AbortsOnCancelledContext(t *testing.T) {
	svc, uow, _ := newDunningFixture()
	tenantID := uuid.New()
	seedOverdue(t, uow, tenantID, "R-1", "Berg GmbH", 100.00, 14)
	seedOverdue(t, uow, tenantID, "R-2", "Adler Apotheke", 200.00, 21)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Run(ctx, tenantID, 7, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, result.Aborted)
	assert.Equal(t, 0, result.Dunned)
	assert.Equal(t, 0, uow.dunningCount())
}

func TestDunningService_Run_Rerunnable(t *testing.T) {
	// Re-executing a finished run changes nothing thanks to the per-day
	// duplicate check
	svc, uow, _ := newDunningFixture()
	tenantID := uuid.New()
	inv := seedOverdue(t, uow, tenantID, "R-1", "Berg GmbH", 100.00, 14)

	first, err := svc.Run(context.Background(), tenantID, 7, decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, 1, first.Dunned)

	second, err := svc.Run(context.Background(), tenantID, 7, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Dunned)
	assert.Equal(t, 1, second.Failed)

	assert.Equal(t, 1, uow.dunningCount())
	assert.Equal(t, 1, uow.invoice(inv.ID).DunningLevel)
}
