package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ledgerapp "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/cache"
	"github.com/erp/receivables/internal/infrastructure/event"
	"github.com/erp/receivables/internal/infrastructure/persistence"
	"github.com/erp/receivables/internal/infrastructure/persistence/models"
	"github.com/erp/receivables/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// testEnv wires real services and handlers on an in-memory database, with
// tenant and operator identity supplied through the development headers.
type testEnv struct {
	engine   *gin.Engine
	tenantID uuid.UUID
	userID   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.InvoiceModel{},
		&models.PaymentModel{},
		&models.CreditNoteModel{},
		&models.BankTransactionModel{},
		&models.DunningRecordModel{},
	))

	logger := zap.NewNop()
	uow := persistence.NewGormUnitOfWork(db)
	bus := event.NewInMemoryEventBus(logger)
	idemStore := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = idemStore.Close() })

	ledgerService := ledgerapp.NewLedgerService(uow, bus, logger)
	allocationService := ledgerapp.NewAllocationService(uow, bus, idemStore, shared.DefaultIdempotencyConfig(), logger)
	matchingService := ledgerapp.NewMatchingService(uow, logger)
	dunningService := ledgerapp.NewDunningService(uow, bus, logger)
	exportService := ledgerapp.NewExportService(uow, logger)

	invoiceHandler := NewInvoiceHandler(ledgerService)
	reconciliationHandler := NewReconciliationHandler(allocationService, matchingService)
	dunningHandler := NewDunningHandler(dunningService, DunningDefaults{MinDaysOverdue: 7})
	reportHandler := NewReportHandler(exportService)

	engine := gin.New()
	api := engine.Group("/api/v1")

	api.POST("/ledger/invoices", invoiceHandler.Create)
	api.GET("/ledger/invoices", invoiceHandler.List)
	api.GET("/ledger/invoices/:id", invoiceHandler.GetByID)
	api.POST("/ledger/invoices/:id/cancel", invoiceHandler.Cancel)
	api.POST("/ledger/invoices/:id/payments", invoiceHandler.RecordPayment)
	api.POST("/ledger/invoices/:id/payments/:paymentId/reverse", invoiceHandler.ReversePayment)
	api.GET("/ledger/invoices/:id/credit-notes", invoiceHandler.ListCreditNotes)
	api.POST("/ledger/credit-notes", invoiceHandler.CreateCreditNote)
	api.POST("/ledger/credit-notes/:id/cancel", invoiceHandler.CancelCreditNote)

	api.POST("/reconciliation/transactions", reconciliationHandler.ImportTransaction)
	api.GET("/reconciliation/transactions", reconciliationHandler.ListTransactions)
	api.GET("/reconciliation/transactions/:id", reconciliationHandler.GetTransaction)
	api.GET("/reconciliation/transactions/:id/suggestions", reconciliationHandler.SuggestMatches)
	api.POST("/reconciliation/transactions/:id/allocate", reconciliationHandler.Allocate)

	api.GET("/dunning/candidates", dunningHandler.ListCandidates)
	api.POST("/dunning/runs", dunningHandler.Run)
	api.POST("/dunning/invoices/:id", dunningHandler.DunInvoice)
	api.GET("/dunning/invoices/:id/history", dunningHandler.History)

	api.GET("/reports/open-items", reportHandler.OpenItems)
	api.GET("/reports/accounting-export", reportHandler.AccountingExport)

	return &testEnv{
		engine:   engine,
		tenantID: uuid.New(),
		userID:   uuid.New(),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(payload)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", e.tenantID.String())
	req.Header.Set("X-User-ID", e.userID.String())

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	return resp.Data
}

func decodeDataList(t *testing.T, w *httptest.ResponseRecorder) []any {
	t.Helper()
	var resp struct {
		Success bool  `json:"success"`
		Data    []any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	return resp.Data
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	return resp.Error.Code
}

// createInvoice posts a valid invoice and returns its ID
func (e *testEnv) createInvoice(t *testing.T, documentNumber string) uuid.UUID {
	t.Helper()
	now := time.Now()
	w := e.do(t, http.MethodPost, "/api/v1/ledger/invoices", CreateInvoiceRequest{
		DocumentNumber: documentNumber,
		CustomerID:     uuid.New().String(),
		CustomerName:   "Adler Apotheke",
		CustomerNumber: "K-1001",
		IssueDate:      now.AddDate(0, 0, -30).Format("2006-01-02"),
		DueDate:        now.AddDate(0, 0, 30).Format("2006-01-02"),
		NetAmount:      100,
		VATAmount:      19,
		GrossAmount:    119,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	id, err := uuid.Parse(data["id"].(string))
	require.NoError(t, err)
	return id
}
