package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes the sort direction to ASC or DESC,
// defaulting to DESC.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField checks the sort field against a whitelist so caller
// input never reaches the ORDER BY clause unchecked. Returns defaultField
// for anything not whitelisted.
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

// StockRecordSortFields contains allowed sort fields for stock records
var StockRecordSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"product_id":     true,
	"sku_id":         true,
	"quantity":       true,
	"warn_threshold": true,
	"version":        true,
}

// StockChangeLogSortFields contains allowed sort fields for change log
// entries
var StockChangeLogSortFields = map[string]bool{
	"id":              true,
	"created_at":      true,
	"product_id":      true,
	"sku_id":          true,
	"change_quantity": true,
	"change_type":     true,
	"order_no":        true,
	"operator_id":     true,
}

// CompensationSortFields contains allowed sort fields for compensation
// records
var CompensationSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"product_id":   true,
	"sku_id":       true,
	"order_no":     true,
	"status":       true,
	"retry_count":  true,
	"execute_time": true,
}
