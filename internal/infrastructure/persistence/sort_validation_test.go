package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"asc lowercase", "asc", "ASC"},
		{"asc uppercase", "ASC", "ASC"},
		{"asc with spaces", "  asc  ", "ASC"},
		{"desc", "desc", "DESC"},
		{"empty defaults to desc", "", "DESC"},
		{"garbage defaults to desc", "ascending; DROP TABLE invoices", "DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"allowed field", "due_date", "due_date"},
		{"allowed field with spaces", " issue_date ", "issue_date"},
		{"empty falls back", "", "issue_date"},
		{"unknown field falls back", "credit_score", "issue_date"},
		{"injection attempt falls back", "due_date; DROP TABLE invoices", "issue_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateSortField(tt.input, InvoiceSortFields, "issue_date"))
		})
	}
}

func TestBankTransactionSortFields(t *testing.T) {
	assert.True(t, BankTransactionSortFields["value_date"])
	assert.True(t, BankTransactionSortFields["amount"])
	assert.False(t, BankTransactionSortFields["reference"])
}
