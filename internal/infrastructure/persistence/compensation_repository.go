package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mallstock/backend/internal/domain/compensation"
	"github.com/mallstock/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormCompensationRepository implements compensation.Repository using GORM
type GormCompensationRepository struct {
	db *gorm.DB
}

// NewGormCompensationRepository creates a new GormCompensationRepository
func NewGormCompensationRepository(db *gorm.DB) *GormCompensationRepository {
	return &GormCompensationRepository{db: db}
}

// FindByID finds a compensation record by its ID
func (r *GormCompensationRepository) FindByID(ctx context.Context, id uuid.UUID) (*compensation.CompensationRecord, error) {
	var record compensation.CompensationRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.ErrPersistence.WithMessage(err.Error())
	}
	return &record, nil
}

// Create persists a new compensation record. A unique index keeps one open
// record per order/operation/product/SKU tuple; hitting it surfaces as
// ErrAlreadyExists so callers can fall back to the existing record.
func (r *GormCompensationRepository) Create(ctx context.Context, record *compensation.CompensationRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return shared.ErrPersistence.WithMessage(err.Error())
	}
	return nil
}

// FindOpenByKey retrieves the PENDING record for an
// order/operation/product/SKU tuple
func (r *GormCompensationRepository) FindOpenByKey(ctx context.Context, orderNo string, operationType compensation.OperationType, productID, skuID int64) (*compensation.CompensationRecord, error) {
	var record compensation.CompensationRecord
	err := r.db.WithContext(ctx).
		Where("order_no = ? AND operation_type = ? AND product_id = ? AND sku_id = ? AND status = ?",
			orderNo, operationType, productID, skuID, compensation.StatusPending).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.ErrPersistence.WithMessage(err.Error())
	}
	return &record, nil
}

// SaveWithLock saves with optimistic locking (checks version)
func (r *GormCompensationRepository) SaveWithLock(ctx context.Context, record *compensation.CompensationRecord) error {
	result := r.db.WithContext(ctx).
		Model(record).
		Where("id = ? AND version = ?", record.ID, record.Version-1).
		Updates(map[string]interface{}{
			"status":         record.Status,
			"retry_count":    record.RetryCount,
			"execute_time":   record.ExecuteTime,
			"failure_reason": record.FailureReason,
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

// FindByStatus lists records created inside the optional time window. A nil
// status matches every status.
func (r *GormCompensationRepository) FindByStatus(ctx context.Context, status *compensation.Status, createdAfter, createdBefore *time.Time, filter shared.Filter) ([]compensation.CompensationRecord, int64, error) {
	base := r.db.WithContext(ctx).
		Model(&compensation.CompensationRecord{})
	if status != nil {
		base = base.Where("status = ?", *status)
	}
	if createdAfter != nil {
		base = base.Where("created_at >= ?", *createdAfter)
	}
	if createdBefore != nil {
		base = base.Where("created_at <= ?", *createdBefore)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, shared.ErrPersistence.WithMessage(err.Error())
	}

	var records []compensation.CompensationRecord
	if err := applyFilter(base, filter, CompensationSortFields).Find(&records).Error; err != nil {
		return nil, 0, shared.ErrPersistence.WithMessage(err.Error())
	}
	return records, total, nil
}

// FindStalePending lists PENDING records created before the cutoff, oldest
// first
func (r *GormCompensationRepository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]compensation.CompensationRecord, error) {
	var records []compensation.CompensationRecord
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", compensation.StatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, shared.ErrPersistence.WithMessage(err.Error())
	}
	return records, nil
}

// DeleteTerminalBefore removes terminal records not updated since the cutoff
func (r *GormCompensationRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", terminalStatuses(), cutoff).
		Delete(&compensation.CompensationRecord{})
	if result.Error != nil {
		return 0, shared.ErrPersistence.WithMessage(result.Error.Error())
	}
	return result.RowsAffected, nil
}

// FindTerminalBefore lists terminal records not updated since the cutoff
func (r *GormCompensationRepository) FindTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]compensation.CompensationRecord, error) {
	var records []compensation.CompensationRecord
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", terminalStatuses(), cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, shared.ErrPersistence.WithMessage(err.Error())
	}
	return records, nil
}

// terminalStatuses are the statuses eligible for purging. Failed records are
// kept for manual intervention.
func terminalStatuses() []compensation.Status {
	return []compensation.Status{compensation.StatusSuccess, compensation.StatusCancelled}
}

// Ensure GormCompensationRepository implements compensation.Repository
var _ compensation.Repository = (*GormCompensationRepository)(nil)
