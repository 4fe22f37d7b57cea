package stock

import (
	"github.com/mallstock/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeStockRecord = "StockRecord"

// Event type constants
const (
	EventTypeStockDeducted       = "StockDeducted"
	EventTypeStockRestored       = "StockRestored"
	EventTypeStockRecounted      = "StockRecounted"
	EventTypeStockBelowThreshold = "StockBelowThreshold"
)

// StockDeductedEvent is raised when stock is deducted for an order
type StockDeductedEvent struct {
	shared.BaseDomainEvent
	ProductID      int64  `json:"product_id"`
	SkuID          int64  `json:"sku_id"`
	BeforeQuantity int64  `json:"before_quantity"`
	AfterQuantity  int64  `json:"after_quantity"`
	Quantity       int64  `json:"quantity"`
	OrderNo        string `json:"order_no"`
	OperatorID     int64  `json:"operator_id"`
}

// NewStockDeductedEvent creates a new StockDeductedEvent
func NewStockDeductedEvent(record *StockRecord, before, quantity int64, orderNo string, operatorID int64) *StockDeductedEvent {
	return &StockDeductedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockDeducted, AggregateTypeStockRecord, record.ID),
		ProductID:       record.ProductID,
		SkuID:           record.SkuID,
		BeforeQuantity:  before,
		AfterQuantity:   record.Quantity,
		Quantity:        quantity,
		OrderNo:         orderNo,
		OperatorID:      operatorID,
	}
}

// EventType returns the event type name
func (e *StockDeductedEvent) EventType() string {
	return EventTypeStockDeducted
}

// StockRestoredEvent is raised when deducted stock is returned
type StockRestoredEvent struct {
	shared.BaseDomainEvent
	ProductID      int64  `json:"product_id"`
	SkuID          int64  `json:"sku_id"`
	BeforeQuantity int64  `json:"before_quantity"`
	AfterQuantity  int64  `json:"after_quantity"`
	Quantity       int64  `json:"quantity"`
	OrderNo        string `json:"order_no"`
	OperatorID     int64  `json:"operator_id"`
}

// NewStockRestoredEvent creates a new StockRestoredEvent
func NewStockRestoredEvent(record *StockRecord, before, quantity int64, orderNo string, operatorID int64) *StockRestoredEvent {
	return &StockRestoredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockRestored, AggregateTypeStockRecord, record.ID),
		ProductID:       record.ProductID,
		SkuID:           record.SkuID,
		BeforeQuantity:  before,
		AfterQuantity:   record.Quantity,
		Quantity:        quantity,
		OrderNo:         orderNo,
		OperatorID:      operatorID,
	}
}

// EventType returns the event type name
func (e *StockRestoredEvent) EventType() string {
	return EventTypeStockRestored
}

// StockRecountedEvent is raised when a physical count overwrites the
// recorded quantity
type StockRecountedEvent struct {
	shared.BaseDomainEvent
	ProductID      int64 `json:"product_id"`
	SkuID          int64 `json:"sku_id"`
	BeforeQuantity int64 `json:"before_quantity"`
	AfterQuantity  int64 `json:"after_quantity"`
	Difference     int64 `json:"difference"`
	OperatorID     int64 `json:"operator_id"`
}

// NewStockRecountedEvent creates a new StockRecountedEvent
func NewStockRecountedEvent(record *StockRecord, before, difference, operatorID int64) *StockRecountedEvent {
	return &StockRecountedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockRecounted, AggregateTypeStockRecord, record.ID),
		ProductID:       record.ProductID,
		SkuID:           record.SkuID,
		BeforeQuantity:  before,
		AfterQuantity:   record.Quantity,
		Difference:      difference,
		OperatorID:      operatorID,
	}
}

// EventType returns the event type name
func (e *StockRecountedEvent) EventType() string {
	return EventTypeStockRecounted
}

// StockBelowThresholdEvent is raised when the quantity drops to or below
// the configured warning threshold
type StockBelowThresholdEvent struct {
	shared.BaseDomainEvent
	ProductID     int64 `json:"product_id"`
	SkuID         int64 `json:"sku_id"`
	Quantity      int64 `json:"quantity"`
	WarnThreshold int64 `json:"warn_threshold"`
}

// NewStockBelowThresholdEvent creates a new StockBelowThresholdEvent
func NewStockBelowThresholdEvent(record *StockRecord) *StockBelowThresholdEvent {
	return &StockBelowThresholdEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockBelowThreshold, AggregateTypeStockRecord, record.ID),
		ProductID:       record.ProductID,
		SkuID:           record.SkuID,
		Quantity:        record.Quantity,
		WarnThreshold:   record.WarnThreshold,
	}
}

// EventType returns the event type name
func (e *StockBelowThresholdEvent) EventType() string {
	return EventTypeStockBelowThreshold
}
