// Package compensation contains the compensation ledger: durable records of
// stock operations that must be re-driven until they succeed or are
// abandoned.
package compensation

import (
	"time"

	"github.com/mallstock/backend/internal/domain/shared"
)

// OperationType identifies the stock operation a compensation re-drives
type OperationType string

// Operation type constants
const (
	OperationDeduct   OperationType = "DEDUCT"
	OperationRollback OperationType = "ROLLBACK"
)

// IsValid checks if the operation type is valid
func (t OperationType) IsValid() bool {
	return t == OperationDeduct || t == OperationRollback
}

// Status represents the lifecycle state of a compensation record
type Status string

// Status constants
const (
	StatusPending   Status = "PENDING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// DefaultMaxRetries is the number of execution attempts a record gets
// before it is marked failed for good.
const DefaultMaxRetries = 3

// CompensationRecord tracks a single stock operation that needs to be
// retried until it takes effect. SUCCESS, FAILED and CANCELLED are terminal;
// executing a terminal record never mutates stock again.
type CompensationRecord struct {
	shared.BaseAggregateRoot
	ProductID     int64         `gorm:"not null;index:idx_comp_product"`
	SkuID         int64         `gorm:"not null;index:idx_comp_product"`
	Quantity      int64         `gorm:"not null"`
	OrderNo       string        `gorm:"type:varchar(64);not null;index"`
	OperationType OperationType `gorm:"type:varchar(20);not null"`
	Status        Status        `gorm:"type:varchar(20);not null;index"`
	RetryCount    int           `gorm:"not null"`
	MaxRetries    int           `gorm:"not null"`
	OperatorID    int64         `gorm:"not null;default:0"`
	ExecuteTime   *time.Time
	FailureReason string `gorm:"type:varchar(500)"`
}

// TableName returns the database table name
func (CompensationRecord) TableName() string {
	return "stock_compensations"
}

// NewCompensationRecord creates a pending compensation record. OperatorID 0
// means the system itself parked the operation.
func NewCompensationRecord(productID, skuID, quantity int64, orderNo string, operationType OperationType, operatorID int64) (*CompensationRecord, error) {
	if productID <= 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("product ID must be positive")
	}
	if skuID < 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("SKU ID cannot be negative")
	}
	if quantity <= 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("quantity must be positive")
	}
	if orderNo == "" {
		return nil, shared.ErrInvalidArgument.WithMessage("order number is required")
	}
	if !operationType.IsValid() {
		return nil, shared.ErrInvalidArgument.WithMessage("invalid operation type: " + string(operationType))
	}

	return &CompensationRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductID:         productID,
		SkuID:             skuID,
		Quantity:          quantity,
		OrderNo:           orderNo,
		OperationType:     operationType,
		Status:            StatusPending,
		RetryCount:        0,
		MaxRetries:        DefaultMaxRetries,
		OperatorID:        operatorID,
	}, nil
}

// IsTerminal reports whether the record can never be executed again
func (r *CompensationRecord) IsTerminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusFailed || r.Status == StatusCancelled
}

// RetriesExhausted reports whether all execution attempts have been used
func (r *CompensationRecord) RetriesExhausted() bool {
	return r.RetryCount >= r.MaxRetries
}

// BeginAttempt consumes one execution attempt. It fails when the record is
// terminal; a pending record whose retries are exhausted is flipped to
// FAILED and reported as invalid state.
func (r *CompensationRecord) BeginAttempt() error {
	switch r.Status {
	case StatusSuccess:
		// already compensated, nothing to do
		return nil
	case StatusCancelled:
		return shared.ErrInvalidState.WithMessage("compensation record has been cancelled")
	case StatusFailed:
		return shared.ErrInvalidState.WithMessage("compensation record has permanently failed")
	}

	if r.RetriesExhausted() {
		r.Status = StatusFailed
		r.FailureReason = "retry attempts exhausted"
		r.IncrementVersion()
		r.Touch()
		return shared.ErrInvalidState.WithMessage("compensation retry attempts exhausted")
	}

	r.RetryCount++
	r.IncrementVersion()
	r.Touch()
	return nil
}

// MarkSuccess records a successful execution
func (r *CompensationRecord) MarkSuccess() {
	now := time.Now()
	r.Status = StatusSuccess
	r.ExecuteTime = &now
	r.FailureReason = ""
	r.IncrementVersion()
	r.Touch()
}

// MarkAttemptFailed records a failed execution attempt. The record stays
// PENDING while attempts remain and becomes FAILED on the last one.
func (r *CompensationRecord) MarkAttemptFailed(reason string) {
	r.FailureReason = reason
	if r.RetriesExhausted() {
		r.Status = StatusFailed
	}
	r.IncrementVersion()
	r.Touch()
}

// CancelReasonDefault is recorded when a record is cancelled without an
// explicit reason.
const CancelReasonDefault = "cancelled by operator"

// Cancel marks the record cancelled and keeps the reason it was abandoned.
// A successful record cannot be cancelled; cancelling an already cancelled
// record is a no-op that leaves the original reason in place.
func (r *CompensationRecord) Cancel(reason string) error {
	switch r.Status {
	case StatusSuccess:
		return shared.ErrInvalidState.WithMessage("cannot cancel a successful compensation")
	case StatusCancelled:
		return nil
	}

	if reason == "" {
		reason = CancelReasonDefault
	}
	r.Status = StatusCancelled
	r.FailureReason = reason
	r.IncrementVersion()
	r.Touch()
	return nil
}
