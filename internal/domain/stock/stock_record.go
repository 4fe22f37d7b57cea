// Package stock contains the stock-control domain model: versioned stock
// records, the append-only change log, and their repository contracts.
package stock

import (
	"fmt"

	"github.com/mallstock/backend/internal/domain/shared"
)

// StockRecord is the aggregate root holding the on-hand quantity for a
// product/SKU combination. SkuID 0 means the quantity is tracked at product
// level. Quantity never goes negative; every committed mutation bumps the
// aggregate version by one.
type StockRecord struct {
	shared.BaseAggregateRoot
	ProductID     int64 `gorm:"not null;uniqueIndex:idx_stock_product_sku"`
	SkuID         int64 `gorm:"not null;uniqueIndex:idx_stock_product_sku"`
	Quantity      int64 `gorm:"not null"`
	WarnThreshold int64 `gorm:"not null"`
}

// TableName returns the database table name
func (StockRecord) TableName() string {
	return "stock_records"
}

// NewStockRecord creates a new stock record with an initial quantity
func NewStockRecord(productID, skuID, quantity int64) (*StockRecord, error) {
	if productID <= 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("product ID must be positive")
	}
	if skuID < 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("SKU ID cannot be negative")
	}
	if quantity < 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("initial quantity cannot be negative")
	}
	return &StockRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductID:         productID,
		SkuID:             skuID,
		Quantity:          quantity,
	}, nil
}

// HasSufficient reports whether quantity units can be deducted
func (r *StockRecord) HasSufficient(quantity int64) bool {
	return r.Quantity >= quantity
}

// Deduct removes quantity units of stock. It fails with InsufficientStock
// when the on-hand quantity would go negative.
func (r *StockRecord) Deduct(quantity int64, orderNo string, operatorID int64) error {
	if quantity <= 0 {
		return shared.ErrInvalidArgument.WithMessage("deduct quantity must be positive")
	}
	if !r.HasSufficient(quantity) {
		return shared.ErrInsufficientStock.WithMessage(
			fmt.Sprintf("insufficient stock for product %d sku %d: have %d, need %d",
				r.ProductID, r.SkuID, r.Quantity, quantity))
	}

	before := r.Quantity
	r.Quantity -= quantity
	r.IncrementVersion()
	r.Touch()

	r.AddDomainEvent(NewStockDeductedEvent(r, before, quantity, orderNo, operatorID))
	r.raiseThresholdEventIfLow()
	return nil
}

// Restore adds quantity units back, used when a deduction is rolled back or
// stock is received.
func (r *StockRecord) Restore(quantity int64, orderNo string, operatorID int64) error {
	if quantity <= 0 {
		return shared.ErrInvalidArgument.WithMessage("restore quantity must be positive")
	}

	before := r.Quantity
	r.Quantity += quantity
	r.IncrementVersion()
	r.Touch()

	r.AddDomainEvent(NewStockRestoredEvent(r, before, quantity, orderNo, operatorID))
	return nil
}

// Recount overwrites the on-hand quantity with the counted actual and
// returns the signed difference against the previous quantity.
func (r *StockRecord) Recount(actualQuantity, operatorID int64) (int64, error) {
	if actualQuantity < 0 {
		return 0, shared.ErrInvalidArgument.WithMessage("counted quantity cannot be negative")
	}

	before := r.Quantity
	delta := actualQuantity - before
	r.Quantity = actualQuantity
	r.IncrementVersion()
	r.Touch()

	r.AddDomainEvent(NewStockRecountedEvent(r, before, delta, operatorID))
	r.raiseThresholdEventIfLow()
	return delta, nil
}

// SetWarnThreshold sets the low-stock warning threshold (0 disables it)
func (r *StockRecord) SetWarnThreshold(threshold int64) error {
	if threshold < 0 {
		return shared.ErrInvalidArgument.WithMessage("warn threshold cannot be negative")
	}
	r.WarnThreshold = threshold
	r.IncrementVersion()
	r.Touch()
	return nil
}

// IsLow reports whether the quantity has fallen to or below the warning
// threshold. A zero threshold means monitoring is disabled.
func (r *StockRecord) IsLow() bool {
	return r.WarnThreshold > 0 && r.Quantity <= r.WarnThreshold
}

func (r *StockRecord) raiseThresholdEventIfLow() {
	if r.IsLow() {
		r.AddDomainEvent(NewStockBelowThresholdEvent(r))
	}
}
