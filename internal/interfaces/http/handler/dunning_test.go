package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createOverdueInvoice posts an invoice whose due date lies the given number
// of days in the past, so it is overdue relative to the current clock
func (e *testEnv) createOverdueInvoice(t *testing.T, documentNumber string, daysOverdue int) uuid.UUID {
	t.Helper()
	now := time.Now()
	w := e.do(t, http.MethodPost, "/api/v1/ledger/invoices", CreateInvoiceRequest{
		DocumentNumber: documentNumber,
		CustomerID:     uuid.New().String(),
		CustomerName:   "Adler Apotheke",
		CustomerNumber: "K-1001",
		IssueDate:      now.AddDate(0, 0, -daysOverdue-30).Format("2006-01-02"),
		DueDate:        now.AddDate(0, 0, -daysOverdue).Format("2006-01-02"),
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

// createCurrentInvoice posts an invoice that is not yet due
func (e *testEnv) createCurrentInvoice(t *testing.T, documentNumber string) uuid.UUID {
	t.Helper()
	now := time.Now()
	w := e.do(t, http.MethodPost, "/api/v1/ledger/invoices", CreateInvoiceRequest{
		DocumentNumber: documentNumber,
		CustomerID:     uuid.New().String(),
		CustomerName:   "Adler Apotheke",
		CustomerNumber: "K-1001",
		IssueDate:      now.Format("2006-01-02"),
		DueDate:        now.AddDate(0, 0, 20).Format("2006-01-02"),
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

func TestDunningHandler_ListCandidates(t *testing.T) {
	env := newTestEnv(t)
	overdueID := env.createOverdueInvoice(t, "R-3001", 40)
	env.createCurrentInvoice(t, "R-3002")

	w := env.do(t, http.MethodGet, "/api/v1/dunning/candidates", nil)
	require.Equal(t, http.StatusOK, w.Code)

	candidates := decodeDataList(t, w)
	require.Len(t, candidates, 1)

	candidate := candidates[0].(map[string]any)
	assert.Equal(t, overdueID.String(), candidate["invoice_id"])
	assert.Equal(t, "R-3001", candidate["document_number"])
	assert.Equal(t, float64(40), candidate["days_overdue"])
	assert.Equal(t, float64(0), candidate["dunning_level"])
	assert.Equal(t, float64(1), candidate["next_level"])
	assert.Equal(t, float64(119), candidate["open_amount"])
}

func TestDunningHandler_ListCandidates_ThresholdOverride(t *testing.T) {
	env := newTestEnv(t)
	env.createOverdueInvoice(t, "R-3010", 10)

	w := env.do(t, http.MethodGet, "/api/v1/dunning/candidates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeDataList(t, w), 1)

	w = env.do(t, http.MethodGet, "/api/v1/dunning/candidates?min_days_overdue=30", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeDataList(t, w))
}

func TestDunningHandler_ListCandidates_MinOpenAmount(t *testing.T) {
	env := newTestEnv(t)
	env.createOverdueInvoice(t, "R-3020", 14)

	w := env.do(t, http.MethodGet, "/api/v1/dunning/candidates?min_open_amount=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeDataList(t, w))
}

func TestDunningHandler_DunInvoice(t *testing.T) {
	env := newTestEnv(t)
	invoiceID := env.createOverdueInvoice(t, "R-3030", 14)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/dunning/invoices/%s", invoiceID), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	record := decodeData(t, w)
	assert.Equal(t, invoiceID.String(), record["invoice_id"])
	assert.Equal(t, float64(1), record["level"])

	// The invoice carries the escalated level afterwards
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/ledger/invoices/%s", invoiceID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	invoice := decodeData(t, w)
	assert.Equal(t, float64(1), invoice["dunning_level"])
	assert.NotNil(t, invoice["last_dunned_at"])
}

func TestDunningHandler_DunInvoice_SameDayDuplicate(t *testing.T) {
	env := newTestEnv(t)
	invoiceID := env.createOverdueInvoice(t, "R-3040", 14)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/dunning/invoices/%s", invoiceID), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/dunning/invoices/%s", invoiceID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ERR_ALREADY_EXISTS", decodeErrorCode(t, w))
}

func TestDunningHandler_DunInvoice_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	invoiceID := env.createOverdueInvoice(t, "R-3050", 14)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/ledger/invoices/%s/cancel", invoiceID), CancelInvoiceRequest{
		Reason: "issued in error",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/dunning/invoices/%s", invoiceID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "ERR_INVALID_STATE", decodeErrorCode(t, w))
}

func TestDunningHandler_DunInvoice_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/dunning/invoices/%s", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ERR_NOT_FOUND", decodeErrorCode(t, w))
}

func TestDunningHandler_Run(t *testing.T) {
	env := newTestEnv(t)
	env.createOverdueInvoice(t, "R-3060", 30)
	env.createOverdueInvoice(t, "R-3061", 20)
	env.createCurrentInvoice(t, "R-3062")

	w := env.do(t, http.MethodPost, "/api/v1/dunning/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	result := decodeData(t, w)
	assert.Equal(t, float64(2), result["selected"])
	assert.Equal(t, float64(2), result["dunned"])
	assert.Equal(t, float64(0), result["failed"])
	assert.Equal(t, false, result["aborted"])
	assert.NotEmpty(t, result["run_id"])
}

func TestDunningHandler_Run_SameDayRerunFails(t *testing.T) {
	env := newTestEnv(t)
	env.createOverdueInvoice(t, "R-3070", 30)

	w := env.do(t, http.MethodPost, "/api/v1/dunning/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decodeData(t, w)["dunned"])

	// Candidates still qualify but the per-day duplicate guard blocks them
	w = env.do(t, http.MethodPost, "/api/v1/dunning/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeData(t, w)
	assert.Equal(t, float64(1), result["selected"])
	assert.Equal(t, float64(0), result["dunned"])
	assert.Equal(t, float64(1), result["failed"])
}

func TestDunningHandler_History(t *testing.T) {
	env := newTestEnv(t)
	invoiceID := env.createOverdueInvoice(t, "R-3080", 14)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/dunning/invoices/%s", invoiceID), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/dunning/invoices/%s/history", invoiceID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	records := decodeDataList(t, w)
	require.Len(t, records, 1)
	record := records[0].(map[string]any)
	assert.Equal(t, invoiceID.String(), record["invoice_id"])
	assert.Equal(t, float64(1), record["level"])
}

func TestDunningHandler_History_Empty(t *testing.T) {
	env := newTestEnv(t)
	invoiceID := env.createCurrentInvoice(t, "R-3090")

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/dunning/invoices/%s/history", invoiceID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeDataList(t, w))
}
