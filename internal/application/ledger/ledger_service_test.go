package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLedgerFixture() (*LedgerService, *fakeUnitOfWork, *capturingPublisher) {
	uow := newFakeUnitOfWork()
	publisher := &capturingPublisher{}
	svc := NewLedgerService(uow, publisher, zap.NewNop())
	return svc, uow, publisher
}

func createInvoiceViaService(t *testing.T, svc *LedgerService, tenantID uuid.UUID, docNumber string, net, vat, gross float64) *ledger.Invoice {
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		TenantID:       tenantID,
		DocumentNumber: docNumber,
		CustomerID:     uuid.New(),
		CustomerName:   "Adler Apotheke",
		CustomerNumber: "C-100",
		IssueDate:      time.Now().AddDate(0, 0, -5),
		DueDate:        time.Now().AddDate(0, 0, 25),
		NetAmount:      decimal.NewFromFloat(net),
		VATAmount:      decimal.NewFromFloat(vat),
		GrossAmount:    decimal.NewFromFloat(gross),
	})
	require.NoError(t, err)
	return inv
}

func TestLedgerService_CreateInvoice(t *testing.T) {
	svc, uow, publisher := newLedgerFixture()
	tenantID := uuid.New()

	inv := createInvoiceViaService(t, svc, tenantID, "R-1042", 100.00, 19.00, 119.00)

	stored := uow.invoice(inv.ID)
	assert.Equal(t, ledger.InvoiceStatusOpen, stored.Status)
	assert.Contains(t, publisher.eventTypes(), "InvoiceCreated")
}

func TestLedgerService_CreateInvoice_DuplicateDocumentNumber(t *testing.T) {
	svc, _, _ := newLedgerFixture()
	tenantID := uuid.New()
	createInvoiceViaService(t, svc, tenantID, "R-1042", 100.00, 19.00, 119.00)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		TenantID:       tenantID,
		DocumentNumber: "R-1042",
		CustomerID:     uuid.New(),
		CustomerName:   "Someone Else",
		CustomerNumber: "C-200",
		IssueDate:      time.Now(),
		DueDate:        time.Now().AddDate(0, 0, 30),
		NetAmount:      decimal.NewFromFloat(10.00),
		VATAmount:      decimal.Zero,
		GrossAmount:    decimal.NewFromFloat(10.00),
	})
	require.Error(t, err)
	assert.True(t, shared.IsDuplicateError(err))
}

func TestLedgerService_CreateInvoice_GrossMismatch(t *testing.T) {
	svc, _, _ := newLedgerFixture()

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		TenantID:       uuid.New(),
		DocumentNumber: "R-1",
		CustomerID:     uuid.New(),
		CustomerName:   "Adler Apotheke",
		IssueDate:      time.Now(),
		DueDate:        time.Now().AddDate(0, 0, 30),
		NetAmount:      decimal.NewFromFloat(100.00),
		VATAmount:      decimal.NewFromFloat(19.00),
		GrossAmount:    decimal.NewFromFloat(120.00),
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidationError(err))
}

func TestLedgerService_RecordPayment_SettlesInvoice(t *testing.T) {
	svc, uow, publisher := newLedgerFixture()
	tenantID := uuid.New()
	inv := createInvoiceViaService(t, svc, tenantID, "R-1042", 100.00, 19.00, 119.00)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		TenantID:   tenantID,
		InvoiceID:  inv.ID,
		Amount:     decimal.NewFromFloat(50.00),
		PaidAt:     time.Now(),
		OperatorID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.InvoiceStatusPartiallyPaid, uow.invoice(inv.ID).Status)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{
		TenantID:   tenantID,
		InvoiceID:  inv.ID,
		Amount:     decimal.NewFromFloat(69.00),
		PaidAt:     time.Now(),
		OperatorID: uuid.New(),
	})
	require.NoError(t, err)

	stored := uow.invoice(inv.ID)
	assert.Equal(t, ledger.InvoiceStatusPaid, stored.Status)
	assert.True(t, stored.OpenAmount().IsZero())
	assert.Contains(t, publisher.eventTypes(), "InvoicePaid")
}

func TestLedgerService_RecordPayment_UnknownInvoice(t *testing.T) {
	svc, _, _ := newLedgerFixture()

	_, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		TenantID:   uuid.New(),
		InvoiceID:  uuid.New(),
		Amount:     decimal.NewFromFloat(50.00),
		PaidAt:     time.Now(),
		OperatorID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsNotFoundError(err))
}

func TestLedgerService_CreateCreditNote_FullThenRejected(t *testing.T) {
	svc, uow, _ := newLedgerFixture()
	tenantID := uuid.New()
	inv := createInvoiceViaService(t, svc, tenantID, "R-2000", 200.00, 0, 200.00)

	note, err := svc.CreateCreditNote(context.Background(), CreateCreditNoteRequest{
		TenantID:       tenantID,
		DocumentNumber: "G-1",
		InvoiceID:      inv.ID,
		Amount:         decimal.NewFromFloat(200.00),
		Reason:         "returned goods",
		IssueDate:      time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.InvoiceStatusPaid, uow.invoice(inv.ID).Status)

	_, err = svc.CreateCreditNote(context.Background(), CreateCreditNoteRequest{
		TenantID:       tenantID,
		DocumentNumber: "G-2",
		InvoiceID:      inv.ID,
		Amount:         decimal.NewFromFloat(1.00),
		Reason:         "goodwill",
		IssueDate:      time.Now(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidationError(err))
	_ = note
}

func TestLedgerService_CancelCreditNote_RestoresOpenAmount(t *testing.T) {
	svc, uow, _ := newLedgerFixture()
	tenantID := uuid.New()
	inv := createInvoiceViaService(t, svc, tenantID, "R-2000", 200.00, 0, 200.00)

	note, err := svc.CreateCreditNote(context.Background(), CreateCreditNoteRequest{
		TenantID:       tenantID,
		DocumentNumber: "G-1",
		InvoiceID:      inv.ID,
		Amount:         decimal.NewFromFloat(80.00),
		Reason:         "returned goods",
		IssueDate:      time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelCreditNote(context.Background(), tenantID, note.ID))

	stored := uow.invoice(inv.ID)
	assert.True(t, stored.CreditedAmount.IsZero())
	assert.True(t, stored.OpenAmount().Equal(decimal.NewFromFloat(200.00)))
}

func TestLedgerService_ReversePayment_ReleasesBankTransaction(t *testing.T) {
	ledgerSvc, uow, _ := newLedgerFixture()
	allocSvc := NewAllocationService(uow, &capturingPublisher{}, newMemoryIdempotencyStore(), shared.DefaultIdempotencyConfig(), zap.NewNop())

	tenantID := uuid.New()
	inv := createInvoiceViaService(t, ledgerSvc, tenantID, "R-1", 100.00, 0, 100.00)
	tx := seedAllocTransaction(t, uow, tenantID, 100.00)

	payments, err := allocSvc.Allocate(context.Background(), AllocateRequest{
		TenantID:      tenantID,
		TransactionID: tx.ID,
		Allocations:   []AllocationLine{{InvoiceID: inv.ID, Amount: decimal.NewFromFloat(100.00)}},
		OperatorID:    uuid.New(),
	})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, ledger.MatchStatusMatched, uow.transaction(tx.ID).Status)

	_, err = ledgerSvc.ReversePayment(context.Background(), ReversePaymentRequest{
		TenantID:  tenantID,
		InvoiceID: inv.ID,
		PaymentID: payments[0].ID,
		Reason:    "bank recall",
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.MatchStatusUnmatched, uow.transaction(tx.ID).Status)
	assert.True(t, uow.invoice(inv.ID).OpenAmount().Equal(decimal.NewFromFloat(100.00)))
}

func TestLedgerService_CancelInvoice(t *testing.T) {
	svc, uow, publisher := newLedgerFixture()
	tenantID := uuid.New()
	inv := createInvoiceViaService(t, svc, tenantID, "R-1", 100.00, 0, 100.00)

	require.NoError(t, svc.CancelInvoice(context.Background(), tenantID, inv.ID, "duplicate document"))
	assert.Equal(t, ledger.InvoiceStatusCancelled, uow.invoice(inv.ID).Status)
	assert.Contains(t, publisher.eventTypes(), "InvoiceCancelled")

	err := svc.CancelInvoice(context.Background(), tenantID, inv.ID, "again")
	require.Error(t, err)
	assert.True(t, shared.IsInvalidStateError(err))
}
