package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes the sort order to ASC or DESC. Invalid or
// empty input falls back to DESC.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField checks the requested field against a whitelist. Sort
// fields are interpolated into SQL, so anything off the whitelist falls back
// to defaultField.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// InvoiceSortFields contains allowed sort fields for invoices
var InvoiceSortFields = map[string]bool{
	"id":              true,
	"created_at":      true,
	"updated_at":      true,
	"document_number": true,
	"customer_name":   true,
	"issue_date":      true,
	"due_date":        true,
	"gross_amount":    true,
	"status":          true,
	"dunning_level":   true,
}

// BankTransactionSortFields contains allowed sort fields for bank transactions
var BankTransactionSortFields = map[string]bool{
	"id":                true,
	"created_at":        true,
	"updated_at":        true,
	"value_date":        true,
	"amount":            true,
	"counterparty_name": true,
	"status":            true,
}
