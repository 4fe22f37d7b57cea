package stock

import (
	"context"

	"github.com/google/uuid"
	"github.com/mallstock/backend/internal/domain/shared"
)

// StockRecordRepository defines the interface for stock record persistence
type StockRecordRepository interface {
	// FindByID retrieves a stock record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*StockRecord, error)

	// FindByProductAndSKU retrieves the record for a product/SKU pair.
	// SkuID 0 addresses product-level stock.
	FindByProductAndSKU(ctx context.Context, productID, skuID int64) (*StockRecord, error)

	// GetOrCreate retrieves the record for a product/SKU pair, creating a
	// zero-quantity record if none exists. Safe under concurrent callers.
	GetOrCreate(ctx context.Context, productID, skuID int64) (*StockRecord, error)

	// Create persists a new stock record
	Create(ctx context.Context, record *StockRecord) error

	// SaveWithLock persists the record with a compare-and-swap on the
	// version column. Returns ErrConcurrencyConflict when another writer
	// committed first.
	SaveWithLock(ctx context.Context, record *StockRecord) error

	// FindBelowThreshold lists records whose quantity is at or below their
	// warning threshold
	FindBelowThreshold(ctx context.Context, filter shared.Filter) ([]StockRecord, int64, error)
}

// StockChangeLogRepository defines the interface for the append-only stock
// change log
type StockChangeLogRepository interface {
	// Create appends a change log entry
	Create(ctx context.Context, entry *StockChangeLog) error

	// FindByProduct lists entries for a product/SKU pair, newest first
	FindByProduct(ctx context.Context, productID, skuID int64, filter shared.Filter) ([]StockChangeLog, int64, error)

	// FindByOrderNo lists entries associated with an order number
	FindByOrderNo(ctx context.Context, orderNo string) ([]StockChangeLog, error)
}
