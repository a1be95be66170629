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

func newAllocationFixture() (*AllocationService, *fakeUnitOfWork, *capturingPublisher) {
	uow := newFakeUnitOfWork()
	publisher := &capturingPublisher{}
	svc := NewAllocationService(uow, publisher, newMemoryIdempotencyStore(), shared.DefaultIdempotencyConfig(), zap.NewNop())
	return svc, uow, publisher
}

func seedAllocInvoice(t *testing.T, uow *fakeUnitOfWork, tenantID uuid.UUID, docNumber string, gross float64) *ledger.Invoice {
	inv, err := ledger.NewInvoice(
		tenantID, docNumber, uuid.New(), "Adler Apotheke", "C-100",
		time.Now().AddDate(0, 0, -20), time.Now().AddDate(0, 0, 10),
		valueobject.NewMoneyEURFromFloat(gross), valueobject.ZeroEUR(), valueobject.NewMoneyEURFromFloat(gross),
		nil,
	)
	require.NoError(t, err)
	inv.ClearDomainEvents()
	uow.seedInvoice(inv)
	return inv
}

func seedAllocTransaction(t *testing.T, uow *fakeUnitOfWork, tenantID uuid.UUID, amount float64) *ledger.BankTransaction {
	tx, err := ledger.NewBankTransaction(
		tenantID, valueobject.NewMoneyEURFromFloat(amount), time.Now(),
		"Adler Apotheke", "DE89370400440532013000", "Sammelzahlung",
	)
	require.NoError(t, err)
	uow.seedTransaction(tx)
	return tx
}

func TestAllocationService_Allocate_MultipleInvoices(t *testing.T) {
	svc, uow, _ := newAllocationFixture()
	tenantID := uuid.New()
	inv1 := seedAllocInvoice(t, uow, tenantID, "R-1", 100.00)
	inv2 := seedAllocInvoice(t, uow, tenantID, "R-2", 50.00)
	tx := seedAllocTransaction(t, uow, tenantID, 150.00)

	payments, err := svc.Allocate(context.Background(), AllocateRequest{
		TenantID:      tenantID,
		TransactionID: tx.ID,
		Allocations: []AllocationLine{
			{InvoiceID: inv1.ID, Amount: decimal.NewFromFloat(100.00)},
			{InvoiceID: inv2.ID, Amount: decimal.NewFromFloat(50.00)},
		},
		OperatorID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	assert.Equal(t, ledger.InvoiceStatusPaid, uow.invoice(inv1.ID).Status)
	assert.Equal(t, ledger.InvoiceStatusPaid, uow.invoice(inv2.ID).Status)
	assert.Equal(t, ledger.MatchStatusMatched, uow.transaction(tx.ID).Status)
}

func TestAllocationService_Allocate_AtomicOnFailure(t *testing.T) {
	// The second line overpays its invoice, so the first line must not
	// stick either
	svc, uow, publisher := newAllocationFixture()
	tenantID := uuid.New()
	inv1 := seedAllocInvoice(t, uow, tenantID, "R-1", 100.00)
	inv2 := seedAllocInvoice(t, uow, tenantID, "R-2", 50.00)
	tx := seedAllocTransaction(t, uow, tenantID, 500.00)

	_, err := svc.Allocate(context.Background(), AllocateRequest{
		TenantID:      tenantID,
		TransactionID: tx.ID,
		Allocations: []AllocationLine{
			{InvoiceID: inv1.ID, Amount: decimal.NewFromFloat(100.00)},
			{InvoiceID: inv2.ID, Amount: decimal.NewFromFloat(80.00)},
		},
		OperatorID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsOverpaymentError(err))

	assert.Empty(t, uow.invoice(inv1.ID).Payments)
	assert.Empty(t, uow.invoice(inv2.ID).Payments)
	assert.Equal(t, ledger.MatchStatusUnmatched, uow.transaction(tx.ID).Status)
	assert.Empty(t, publisher.eventTypes())
}

func TestAllocationService_Allocate_ExceedsTransactionAmount(t *testing.T) {
	svc, uow, _ := newAllocationFixture()
	tenantID := uuid.New()
	inv := seedAllocInvoice(t, uow, tenantID, "R-1", 500.00)
	tx := seedAllocTransaction(t, uow, tenantID, 100.00)

	_, err := svc.Allocate(context.Background(), AllocateRequest{
		TenantID:      tenantID,
		TransactionID: tx.ID,
		Allocations: []AllocationLine{
			{InvoiceID: inv.ID, Amount: decimal.NewFromFloat(100.02)},
		},
		OperatorID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsOverpaymentError(err))
}

func TestAllocationService_Allocate_EmptyList(t *testing.T) {
	svc, uow, _ := newAllocationFixture()
	tenantID := uuid.New()
	tx := seedAllocTransaction(t, uow, tenantID, 100.00)

	_, err := svc.Allocate(context.Background(), AllocateRequest{
		TenantID:      tenantID,
		TransactionID: tx.ID,
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidationError(err))
}

func TestAllocationService_Allocate_DuplicateInvoice(t *testing.T) {
	svc, uow, _ := newAllocationFixture()
	tenantID := uuid.New()
	inv := seedAllocInvoice(t, uow, tenantID, "R-1", 100.00)
	tx := seedAllocTransaction(t, uow, tenantID, 100.00)

	_, err := svc.Allocate(context.Background(), AllocateRequest{
		TenantID:      tenantID,
		TransactionID: tx.ID,
		Allocations: []AllocationLine{
			{InvoiceID: inv.ID, Amount: decimal.NewFromFloat(50.00)},
			{InvoiceID: inv.ID, Amount: decimal.NewFromFloat(50.00)},
		},
		OperatorID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidationError(err))
}

func TestAllocationService_Allocate_UnknownInvoice(t *testing.T) {
	svc, uow, _ := newAllocationFixture()
	tenantID := uuid.New()
	tx := seedAllocTransaction(t, uow, tenantID, 100.00)

	_, err := svc.Allocate(context.Background(), AllocateRequest{
		TenantID:      tenantID,
		TransactionID: tx.ID,
		Allocations: []AllocationLine{
			{InvoiceID: uuid.New(), Amount: decimal.NewFromFloat(50.00)},
		},
		OperatorID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsNotFoundError(err))
}

func TestAllocationService_Allocate_IdempotencyKeyReplay(t *testing.T) {
	svc, uow, _ := newAllocationFixture()
	tenantID := uuid.New()
	inv := seedAllocInvoice(t, uow, tenantID, "R-1", 100.00)
	tx := seedAllocTransaction(t, uow, tenantID, 100.00)

	req := AllocateRequest{
		TenantID:      tenantID,
		TransactionID: tx.ID,
		Allocations: []AllocationLine{
			{InvoiceID: inv.ID, Amount: decimal.NewFromFloat(40.00)},
		},
		OperatorID:     uuid.New(),
		IdempotencyKey: "op-click-7",
	}

	_, err := svc.Allocate(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Allocate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, shared.IsDuplicateError(err))
	// The replay changed nothing
	assert.Len(t, uow.invoice(inv.ID).Payments, 1)
}

func TestAllocationService_Allocate_IdempotencyKeyReleasedOnFailure(t *testing.T) {
	// A failed allocation commits nothing, so a corrected retry with the
	// same key must be accepted rather than rejected as a replay
	svc, uow, _ := newAllocationFixture()
	tenantID := uuid.New()
	inv := seedAllocInvoice(t, uow, tenantID, "R-1", 100.00)
	tx := seedAllocTransaction(t, uow, tenantID, 500.00)

	req := AllocateRequest{
		TenantID:      tenantID,
		TransactionID: tx.ID,
		Allocations: []AllocationLine{
			{InvoiceID: inv.ID, Amount: decimal.NewFromFloat(400.00)},
		},
		OperatorID:     uuid.New(),
		IdempotencyKey: "op-click-8",
	}

	_, err := svc.Allocate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, shared.IsOverpaymentError(err))
	assert.Empty(t, uow.invoice(inv.ID).Payments)

	req.Allocations[0].Amount = decimal.NewFromFloat(100.00)
	payments, err := svc.Allocate(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, ledger.InvoiceStatusPaid, uow.invoice(inv.ID).Status)

	// The successful call still consumed the key
	_, err = svc.Allocate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, shared.IsDuplicateError(err))
}

func TestAllocationService_Allocate_PublishesEvents(t *testing.T) {
	svc, uow, publisher := newAllocationFixture()
	tenantID := uuid.New()
	inv := seedAllocInvoice(t, uow, tenantID, "R-1", 100.00)
	tx := seedAllocTransaction(t, uow, tenantID, 100.00)

	_, err := svc.Allocate(context.Background(), AllocateRequest{
		TenantID:      tenantID,
		TransactionID: tx.ID,
		Allocations: []AllocationLine{
			{InvoiceID: inv.ID, Amount: decimal.NewFromFloat(100.00)},
		},
		OperatorID: uuid.New(),
	})
	require.NoError(t, err)

	types := publisher.eventTypes()
	assert.Contains(t, types, "PaymentRecorded")
	assert.Contains(t, types, "InvoicePaid")
}

func TestAllocationService_ImportTransaction(t *testing.T) {
	svc, uow, _ := newAllocationFixture()
	tenantID := uuid.New()

	tx, err := svc.ImportTransaction(context.Background(), ImportTransactionRequest{
		TenantID:         tenantID,
		Amount:           decimal.NewFromFloat(250.00),
		ValueDate:        time.Now(),
		CounterpartyName: "Adler Apotheke",
		CounterpartyIBAN: "DE89370400440532013000",
		Reference:        "R-1042",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.MatchStatusUnmatched, uow.transaction(tx.ID).Status)
}
