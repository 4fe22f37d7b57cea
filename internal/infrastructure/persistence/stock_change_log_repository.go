package persistence

import (
	"context"

	"github.com/mallstock/backend/internal/domain/shared"
	"github.com/mallstock/backend/internal/domain/stock"
	"gorm.io/gorm"
)

// GormStockChangeLogRepository implements StockChangeLogRepository using GORM.
// The change log is append-only: entries are never updated or deleted.
type GormStockChangeLogRepository struct {
	db *gorm.DB
}

// NewGormStockChangeLogRepository creates a new GormStockChangeLogRepository
func NewGormStockChangeLogRepository(db *gorm.DB) *GormStockChangeLogRepository {
	return &GormStockChangeLogRepository{db: db}
}

// Create appends a change log entry
func (r *GormStockChangeLogRepository) Create(ctx context.Context, entry *stock.StockChangeLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return shared.ErrPersistence.WithMessage(err.Error())
	}
	return nil
}

// FindByProduct lists entries for a product/SKU pair, newest first
func (r *GormStockChangeLogRepository) FindByProduct(ctx context.Context, productID, skuID int64, filter shared.Filter) ([]stock.StockChangeLog, int64, error) {
	base := r.db.WithContext(ctx).
		Model(&stock.StockChangeLog{}).
		Where("product_id = ? AND sku_id = ?", productID, skuID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, shared.ErrPersistence.WithMessage(err.Error())
	}

	var entries []stock.StockChangeLog
	if err := applyFilter(base, filter, StockChangeLogSortFields).Find(&entries).Error; err != nil {
		return nil, 0, shared.ErrPersistence.WithMessage(err.Error())
	}
	return entries, total, nil
}

// FindByOrderNo lists entries associated with an order number
func (r *GormStockChangeLogRepository) FindByOrderNo(ctx context.Context, orderNo string) ([]stock.StockChangeLog, error) {
	var entries []stock.StockChangeLog
	if err := r.db.WithContext(ctx).
		Where("order_no = ?", orderNo).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, shared.ErrPersistence.WithMessage(err.Error())
	}
	return entries, nil
}

// Ensure GormStockChangeLogRepository implements StockChangeLogRepository
var _ stock.StockChangeLogRepository = (*GormStockChangeLogRepository)(nil)
