package stock

import (
	"github.com/mallstock/backend/internal/domain/shared"
)

// ChangeType classifies a stock movement in the change log
type ChangeType string

// Change type constants
const (
	ChangeTypeIncrease ChangeType = "INCREASE"
	ChangeTypeDecrease ChangeType = "DECREASE"
	ChangeTypeTransfer ChangeType = "TRANSFER"
	ChangeTypeRecount  ChangeType = "RECOUNT"
)

// IsValid checks if the change type is valid
func (t ChangeType) IsValid() bool {
	switch t {
	case ChangeTypeIncrease, ChangeTypeDecrease, ChangeTypeTransfer, ChangeTypeRecount:
		return true
	}
	return false
}

// StockChangeLog is an immutable audit entry describing a single stock
// movement. Entries are append-only: they are created once and never
// updated or deleted.
type StockChangeLog struct {
	shared.BaseEntity
	ProductID      int64      `gorm:"not null;index:idx_stock_log_product"`
	SkuID          int64      `gorm:"not null;index:idx_stock_log_product"`
	BeforeQuantity int64      `gorm:"not null"`
	AfterQuantity  int64      `gorm:"not null"`
	ChangeQuantity int64      `gorm:"not null"`
	ChangeType     ChangeType `gorm:"type:varchar(20);not null"`
	Reason         string     `gorm:"type:varchar(255)"`
	OrderNo        string     `gorm:"type:varchar(64);index"`
	OperatorID     int64      `gorm:"not null"`
}

// TableName returns the database table name
func (StockChangeLog) TableName() string {
	return "stock_change_logs"
}

// NewStockChangeLog creates a change log entry. The after quantity must be
// the before quantity plus the signed change quantity.
func NewStockChangeLog(productID, skuID, before, after, change int64, changeType ChangeType) (*StockChangeLog, error) {
	if productID <= 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("product ID must be positive")
	}
	if skuID < 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("SKU ID cannot be negative")
	}
	if !changeType.IsValid() {
		return nil, shared.ErrInvalidArgument.WithMessage("invalid change type: " + string(changeType))
	}
	if before < 0 || after < 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("quantities cannot be negative")
	}
	if before+change != after {
		return nil, shared.ErrInvalidArgument.WithMessage("change quantity does not reconcile before and after quantities")
	}

	return &StockChangeLog{
		BaseEntity:     shared.NewBaseEntity(),
		ProductID:      productID,
		SkuID:          skuID,
		BeforeQuantity: before,
		AfterQuantity:  after,
		ChangeQuantity: change,
		ChangeType:     changeType,
	}, nil
}

// WithReason sets a human-readable reason for the movement
func (l *StockChangeLog) WithReason(reason string) *StockChangeLog {
	l.Reason = reason
	return l
}

// WithOrderNo associates the movement with a business order number
func (l *StockChangeLog) WithOrderNo(orderNo string) *StockChangeLog {
	l.OrderNo = orderNo
	return l
}

// WithOperator records who triggered the movement (0 = system)
func (l *StockChangeLog) WithOperator(operatorID int64) *StockChangeLog {
	l.OperatorID = operatorID
	return l
}

// IsIncrease reports whether the entry added stock
func (l *StockChangeLog) IsIncrease() bool {
	return l.ChangeQuantity > 0
}

// IsDecrease reports whether the entry removed stock
func (l *StockChangeLog) IsDecrease() bool {
	return l.ChangeQuantity < 0
}
