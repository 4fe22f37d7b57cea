package compensation

import (
	"time"

	"github.com/google/uuid"
	"github.com/mallstock/backend/internal/domain/compensation"
)

// CreateCompensationRequest parks a stock operation in the ledger for
// later (re-)execution
type CreateCompensationRequest struct {
	ProductID     int64  `json:"product_id"`
	SkuID         int64  `json:"sku_id"`
	Quantity      int64  `json:"quantity"`
	OrderNo       string `json:"order_no"`
	OperationType string `json:"operation_type"`
	OperatorID    int64  `json:"operator_id"`
}

// CompensationDTO is the read model for a compensation record
type CompensationDTO struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     int64      `json:"product_id"`
	SkuID         int64      `json:"sku_id"`
	Quantity      int64      `json:"quantity"`
	OrderNo       string     `json:"order_no"`
	OperationType string     `json:"operation_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	OperatorID    int64      `json:"operator_id"`
	ExecuteTime   *time.Time `json:"execute_time,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ToCompensationDTO converts a domain record to its read model
func ToCompensationDTO(record *compensation.CompensationRecord) CompensationDTO {
	return CompensationDTO{
		ID:            record.ID,
		ProductID:     record.ProductID,
		SkuID:         record.SkuID,
		Quantity:      record.Quantity,
		OrderNo:       record.OrderNo,
		OperationType: string(record.OperationType),
		Status:        string(record.Status),
		RetryCount:    record.RetryCount,
		MaxRetries:    record.MaxRetries,
		OperatorID:    record.OperatorID,
		ExecuteTime:   record.ExecuteTime,
		FailureReason: record.FailureReason,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}

// ExecutionResult reports the outcome of driving one compensation record
type ExecutionResult struct {
	Executed bool            `json:"executed"`
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Record   CompensationDTO `json:"record"`
}

// BatchExecutionResult reports per-record outcomes of driving several
// compensation records. Records are isolated: one failure never stops the
// rest of the batch.
type BatchExecutionResult struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []ExecutionResult `json:"results"`
}

// SweepStats summarizes one sweep over stale pending records
type SweepStats struct {
	Scanned   int `json:"scanned"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}
