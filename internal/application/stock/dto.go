package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/mallstock/backend/internal/domain/stock"
)

// DeductStockRequest asks for a quantity of stock to be deducted for an
// order. OperatorID 0 means the system itself.
type DeductStockRequest struct {
	ProductID  int64  `json:"product_id"`
	SkuID      int64  `json:"sku_id"`
	Quantity   int64  `json:"quantity"`
	OrderNo    string `json:"order_no"`
	OperatorID int64  `json:"operator_id"`
}

// RollbackStockRequest asks for previously deducted stock to be restored
type RollbackStockRequest struct {
	ProductID  int64  `json:"product_id"`
	SkuID      int64  `json:"sku_id"`
	Quantity   int64  `json:"quantity"`
	OrderNo    string `json:"order_no"`
	OperatorID int64  `json:"operator_id"`
}

// RecountStockRequest overwrites the recorded quantity with a physical
// count
type RecountStockRequest struct {
	ProductID      int64 `json:"product_id"`
	SkuID          int64 `json:"sku_id"`
	ActualQuantity int64 `json:"actual_quantity"`
	OperatorID     int64 `json:"operator_id"`
}

// StockOperationResult reports the outcome of a single stock mutation
type StockOperationResult struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	OldQuantity int64      `json:"old_quantity"`
	NewQuantity int64      `json:"new_quantity"`
	LogID       *uuid.UUID `json:"log_id,omitempty"`
}

// BatchItem is one product line inside a batch operation
type BatchItem struct {
	ProductID int64 `json:"product_id"`
	SkuID     int64 `json:"sku_id"`
	Quantity  int64 `json:"quantity"`
}

// BatchDeductRequest asks for several deductions under one order. The batch
// is all-or-nothing: a failing item triggers rollback of everything already
// deducted.
type BatchDeductRequest struct {
	Items      []BatchItem `json:"items"`
	OrderNo    string            `json:"order_no"`
	OperatorID int64             `json:"operator_id"`
}

// BatchDeductResult reports the outcome of a batch deduction. When the
// batch fails, CompensationIDs lists the ledger records created for
// rollback steps that could not be applied immediately.
type BatchDeductResult struct {
	Success         bool                   `json:"success"`
	Message         string                 `json:"message"`
	FailedIndex     int                    `json:"failed_index"`
	Results         []StockOperationResult `json:"results"`
	CompensationIDs []uuid.UUID            `json:"compensation_ids,omitempty"`
}

// BatchRollbackRequest asks for several rollbacks under one order. Unlike a
// batch deduction, the lines are independent: each one restores stock that
// was deducted separately, so a failing line never undoes its siblings.
type BatchRollbackRequest struct {
	Items      []BatchItem `json:"items"`
	OrderNo    string      `json:"order_no"`
	OperatorID int64       `json:"operator_id"`
}

// BatchRollbackResult reports per-line outcomes of a batch rollback
type BatchRollbackResult struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Total     int                    `json:"total"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Results   []StockOperationResult `json:"results"`
}

// StockRecordDTO is the read model for a stock record
type StockRecordDTO struct {
	ID            uuid.UUID `json:"id"`
	ProductID     int64     `json:"product_id"`
	SkuID         int64     `json:"sku_id"`
	Quantity      int64     `json:"quantity"`
	WarnThreshold int64     `json:"warn_threshold"`
	Version       int64     `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ToStockRecordDTO converts a domain record to its read model
func ToStockRecordDTO(record *stock.StockRecord) StockRecordDTO {
	return StockRecordDTO{
		ID:            record.ID,
		ProductID:     record.ProductID,
		SkuID:         record.SkuID,
		Quantity:      record.Quantity,
		WarnThreshold: record.WarnThreshold,
		Version:       record.GetVersion(),
		UpdatedAt:     record.UpdatedAt,
	}
}

// StockChangeLogDTO is the read model for a change log entry
type StockChangeLogDTO struct {
	ID             uuid.UUID `json:"id"`
	ProductID      int64     `json:"product_id"`
	SkuID          int64     `json:"sku_id"`
	BeforeQuantity int64     `json:"before_quantity"`
	AfterQuantity  int64     `json:"after_quantity"`
	ChangeQuantity int64     `json:"change_quantity"`
	ChangeType     string    `json:"change_type"`
	Reason         string    `json:"reason,omitempty"`
	OrderNo        string    `json:"order_no,omitempty"`
	OperatorID     int64     `json:"operator_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToStockChangeLogDTO converts a domain entry to its read model
func ToStockChangeLogDTO(entry *stock.StockChangeLog) StockChangeLogDTO {
	return StockChangeLogDTO{
		ID:             entry.ID,
		ProductID:      entry.ProductID,
		SkuID:          entry.SkuID,
		BeforeQuantity: entry.BeforeQuantity,
		AfterQuantity:  entry.AfterQuantity,
		ChangeQuantity: entry.ChangeQuantity,
		ChangeType:     string(entry.ChangeType),
		Reason:         entry.Reason,
		OrderNo:        entry.OrderNo,
		OperatorID:     entry.OperatorID,
		CreatedAt:      entry.CreatedAt,
	}
}
