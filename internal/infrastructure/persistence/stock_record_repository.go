package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mallstock/backend/internal/domain/shared"
	"github.com/mallstock/backend/internal/domain/stock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockRecordRepository implements StockRecordRepository using GORM
type GormStockRecordRepository struct {
	db *gorm.DB
}

// NewGormStockRecordRepository creates a new GormStockRecordRepository
func NewGormStockRecordRepository(db *gorm.DB) *GormStockRecordRepository {
	return &GormStockRecordRepository{db: db}
}

// FindByID finds a stock record by its ID
func (r *GormStockRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.StockRecord, error) {
	var record stock.StockRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.ErrPersistence.WithMessage(err.Error())
	}
	return &record, nil
}

// FindByProductAndSKU finds the record for a product/SKU pair
func (r *GormStockRecordRepository) FindByProductAndSKU(ctx context.Context, productID, skuID int64) (*stock.StockRecord, error) {
	var record stock.StockRecord
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND sku_id = ?", productID, skuID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.ErrPersistence.WithMessage(err.Error())
	}
	return &record, nil
}

// GetOrCreate gets the existing record or creates a zero-quantity one
func (r *GormStockRecordRepository) GetOrCreate(ctx context.Context, productID, skuID int64) (*stock.StockRecord, error) {
	record, err := r.FindByProductAndSKU(ctx, productID, skuID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	record, err = stock.NewStockRecord(productID, skuID, 0)
	if err != nil {
		return nil, err
	}

	// ON CONFLICT covers the race where two callers create the same pair
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "sku_id"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		return nil, shared.ErrPersistence.WithMessage(result.Error.Error())
	}

	// Conflict means someone else won; fetch their row
	if result.RowsAffected == 0 {
		return r.FindByProductAndSKU(ctx, productID, skuID)
	}
	return record, nil
}

// Create persists a new stock record
func (r *GormStockRecordRepository) Create(ctx context.Context, record *stock.StockRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return shared.ErrPersistence.WithMessage(err.Error())
	}
	return nil
}

// SaveWithLock saves with optimistic locking (checks version)
func (r *GormStockRecordRepository) SaveWithLock(ctx context.Context, record *stock.StockRecord) error {
	result := r.db.WithContext(ctx).
		Model(record).
		Where("id = ? AND version = ?", record.ID, record.Version-1).
		Updates(map[string]interface{}{
			"quantity":       record.Quantity,
			"warn_threshold": record.WarnThreshold,
			"version":        record.Version,
			"updated_at":     record.UpdatedAt,
		})

	if result.Error != nil {
		return shared.ErrPersistence.WithMessage(result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindBelowThreshold finds records at or below their warning threshold
func (r *GormStockRecordRepository) FindBelowThreshold(ctx context.Context, filter shared.Filter) ([]stock.StockRecord, int64, error) {
	base := r.db.WithContext(ctx).
		Model(&stock.StockRecord{}).
		Where("warn_threshold > 0 AND quantity <= warn_threshold")

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, shared.ErrPersistence.WithMessage(err.Error())
	}

	var records []stock.StockRecord
	if err := applyFilter(base, filter, StockRecordSortFields).Find(&records).Error; err != nil {
		return nil, 0, shared.ErrPersistence.WithMessage(err.Error())
	}
	return records, total, nil
}

// applyFilter applies pagination and whitelisted ordering to a query
func applyFilter(query *gorm.DB, filter shared.Filter, allowedFields map[string]bool) *gorm.DB {
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	sortField := ValidateSortField(filter.OrderBy, allowedFields, "created_at")
	sortOrder := ValidateSortOrder(filter.OrderDir)
	return query.Order(sortField + " " + sortOrder)
}

// Ensure GormStockRecordRepository implements StockRecordRepository
var _ stock.StockRecordRepository = (*GormStockRecordRepository)(nil)
