// Package stock orchestrates stock mutations: it serializes writers with a
// distributed lock, drives the version compare-and-swap retry loop, and
// keeps the audit change log fed.
package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mallstock/backend/internal/domain/shared"
	"github.com/mallstock/backend/internal/domain/stock"
	"go.uber.org/zap"
)

// Default lock lease parameters
const (
	DefaultLockTTL  = 30 * time.Second
	DefaultLockWait = 5 * time.Second
)

// StockServiceConfig holds tunables for the mutation engine
type StockServiceConfig struct {
	// LockTTL is the lease duration of the per-product mutation lock
	LockTTL time.Duration
	// LockWait is how long a caller waits for the lock before giving up
	LockWait time.Duration
}

// DefaultStockServiceConfig returns the default mutation engine tunables
func DefaultStockServiceConfig() StockServiceConfig {
	return StockServiceConfig{
		LockTTL:  DefaultLockTTL,
		LockWait: DefaultLockWait,
	}
}

// StockService implements the stock mutation operations. Deduct and
// rollback run under the distributed lock plus the optimistic retry loop;
// recount serializes through a process-local mutex per product/SKU pair.
type StockService struct {
	records    stock.StockRecordRepository
	changeLogs stock.StockChangeLogRepository
	locks      LockManager
	executor   *OptimisticExecutor
	publisher  shared.EventPublisher
	config     StockServiceConfig
	logger     *zap.Logger

	// recount locks are created on first use and kept for the process
	// lifetime
	recountLocks sync.Map // string -> *sync.Mutex
}

// NewStockService creates a new stock mutation service
func NewStockService(
	records stock.StockRecordRepository,
	changeLogs stock.StockChangeLogRepository,
	locks LockManager,
	executor *OptimisticExecutor,
	publisher shared.EventPublisher,
	config StockServiceConfig,
	logger *zap.Logger,
) *StockService {
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	if config.LockWait <= 0 {
		config.LockWait = DefaultLockWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{
		records:    records,
		changeLogs: changeLogs,
		locks:      locks,
		executor:   executor,
		publisher:  publisher,
		config:     config,
		logger:     logger,
	}
}

// DeductStock removes quantity units for an order. The whole operation runs
// under the product/SKU mutation lock; the save itself is additionally
// guarded by the version compare-and-swap so writers on other instances
// cannot produce oversell.
func (s *StockService) DeductStock(ctx context.Context, req DeductStockRequest) (*StockOperationResult, error) {
	if err := validateMutation(req.ProductID, req.SkuID, req.Quantity, req.OrderNo); err != nil {
		return nil, err
	}

	lock, err := s.locks.Acquire(ctx, DeductLockKey(req.ProductID, req.SkuID), s.config.LockTTL, s.config.LockWait)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, lock)

	// fast pre-flight check before entering the retry loop
	record, err := s.records.FindByProductAndSKU(ctx, req.ProductID, req.SkuID)
	if err != nil {
		return nil, err
	}
	if !record.HasSufficient(req.Quantity) {
		return nil, shared.ErrInsufficientStock.WithMessage(
			fmt.Sprintf("insufficient stock for product %d sku %d: have %d, need %d",
				req.ProductID, req.SkuID, record.Quantity, req.Quantity))
	}

	var saved *stock.StockRecord
	var before int64
	err = s.executor.Execute(ctx, "deduct_stock", func(ctx context.Context) error {
		rec, err := s.records.FindByProductAndSKU(ctx, req.ProductID, req.SkuID)
		if err != nil {
			return err
		}
		before = rec.Quantity
		// sufficiency is re-checked inside the loop; a concurrent writer
		// may have drained the stock since the pre-flight check
		if err := rec.Deduct(req.Quantity, req.OrderNo, req.OperatorID); err != nil {
			return err
		}
		if err := s.records.SaveWithLock(ctx, rec); err != nil {
			return err
		}
		saved = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishDomainEvents(ctx, saved)
	logID := s.writeChangeLog(ctx, saved, before, -req.Quantity, stock.ChangeTypeDecrease, "stock deduction", req.OrderNo, req.OperatorID)

	s.logger.Info("stock deducted",
		zap.Int64("product_id", req.ProductID),
		zap.Int64("sku_id", req.SkuID),
		zap.Int64("quantity", req.Quantity),
		zap.String("order_no", req.OrderNo),
		zap.Int64("remaining", saved.Quantity),
	)

	return &StockOperationResult{
		Success:     true,
		Message:     "stock deducted",
		OldQuantity: before,
		NewQuantity: saved.Quantity,
		LogID:       logID,
	}, nil
}

// RollbackStock restores quantity units previously deducted for an order
func (s *StockService) RollbackStock(ctx context.Context, req RollbackStockRequest) (*StockOperationResult, error) {
	if err := validateMutation(req.ProductID, req.SkuID, req.Quantity, req.OrderNo); err != nil {
		return nil, err
	}

	lock, err := s.locks.Acquire(ctx, DeductLockKey(req.ProductID, req.SkuID), s.config.LockTTL, s.config.LockWait)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, lock)

	var saved *stock.StockRecord
	var before int64
	err = s.executor.Execute(ctx, "rollback_stock", func(ctx context.Context) error {
		rec, err := s.records.FindByProductAndSKU(ctx, req.ProductID, req.SkuID)
		if err != nil {
			return err
		}
		before = rec.Quantity
		if err := rec.Restore(req.Quantity, req.OrderNo, req.OperatorID); err != nil {
			return err
		}
		if err := s.records.SaveWithLock(ctx, rec); err != nil {
			return err
		}
		saved = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishDomainEvents(ctx, saved)
	logID := s.writeChangeLog(ctx, saved, before, req.Quantity, stock.ChangeTypeIncrease, "stock rollback", req.OrderNo, req.OperatorID)

	s.logger.Info("stock rolled back",
		zap.Int64("product_id", req.ProductID),
		zap.Int64("sku_id", req.SkuID),
		zap.Int64("quantity", req.Quantity),
		zap.String("order_no", req.OrderNo),
	)

	return &StockOperationResult{
		Success:     true,
		Message:     "stock rolled back",
		OldQuantity: before,
		NewQuantity: saved.Quantity,
		LogID:       logID,
	}, nil
}

// RecountStock overwrites the recorded quantity with a physical count.
// Counts are an operator activity, so contention is process-local and a
// plain mutex per product/SKU pair is enough; the versioned save still
// protects against writers on other instances.
func (s *StockService) RecountStock(ctx context.Context, req RecountStockRequest) (*StockOperationResult, error) {
	if req.ProductID <= 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("product ID must be positive")
	}
	if req.SkuID < 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("SKU ID cannot be negative")
	}
	if req.ActualQuantity < 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("counted quantity cannot be negative")
	}

	mu := s.recountLock(req.ProductID, req.SkuID)
	mu.Lock()
	defer mu.Unlock()

	record, err := s.records.GetOrCreate(ctx, req.ProductID, req.SkuID)
	if err != nil {
		return nil, err
	}

	before := record.Quantity
	delta, err := record.Recount(req.ActualQuantity, req.OperatorID)
	if err != nil {
		return nil, err
	}
	if err := s.records.SaveWithLock(ctx, record); err != nil {
		return nil, err
	}

	s.publishDomainEvents(ctx, record)
	logID := s.writeChangeLog(ctx, record, before, delta, stock.ChangeTypeRecount, "stock recount", "", req.OperatorID)

	s.logger.Info("stock recounted",
		zap.Int64("product_id", req.ProductID),
		zap.Int64("sku_id", req.SkuID),
		zap.Int64("counted", req.ActualQuantity),
		zap.Int64("difference", delta),
	)

	return &StockOperationResult{
		Success:     true,
		Message:     "stock recounted",
		OldQuantity: before,
		NewQuantity: record.Quantity,
		LogID:       logID,
	}, nil
}

// GetStock returns the stock record for a product/SKU pair
func (s *StockService) GetStock(ctx context.Context, productID, skuID int64) (*StockRecordDTO, error) {
	if productID <= 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("product ID must be positive")
	}
	record, err := s.records.FindByProductAndSKU(ctx, productID, skuID)
	if err != nil {
		return nil, err
	}
	dto := ToStockRecordDTO(record)
	return &dto, nil
}

// SetWarnThreshold updates the low-stock warning threshold for a record
func (s *StockService) SetWarnThreshold(ctx context.Context, productID, skuID, threshold int64) error {
	if productID <= 0 {
		return shared.ErrInvalidArgument.WithMessage("product ID must be positive")
	}
	return s.executor.Execute(ctx, "set_warn_threshold", func(ctx context.Context) error {
		record, err := s.records.FindByProductAndSKU(ctx, productID, skuID)
		if err != nil {
			return err
		}
		if err := record.SetWarnThreshold(threshold); err != nil {
			return err
		}
		return s.records.SaveWithLock(ctx, record)
	})
}

// ListLowStock lists records at or below their warning threshold
func (s *StockService) ListLowStock(ctx context.Context, filter shared.Filter) ([]StockRecordDTO, int64, error) {
	records, total, err := s.records.FindBelowThreshold(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]StockRecordDTO, 0, len(records))
	for i := range records {
		dtos = append(dtos, ToStockRecordDTO(&records[i]))
	}
	return dtos, total, nil
}

// ListChanges lists change log entries for a product/SKU pair
func (s *StockService) ListChanges(ctx context.Context, productID, skuID int64, filter shared.Filter) ([]StockChangeLogDTO, int64, error) {
	if productID <= 0 {
		return nil, 0, shared.ErrInvalidArgument.WithMessage("product ID must be positive")
	}
	entries, total, err := s.changeLogs.FindByProduct(ctx, productID, skuID, filter)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]StockChangeLogDTO, 0, len(entries))
	for i := range entries {
		dtos = append(dtos, ToStockChangeLogDTO(&entries[i]))
	}
	return dtos, total, nil
}

// ListChangesByOrder lists change log entries recorded under an order
// number
func (s *StockService) ListChangesByOrder(ctx context.Context, orderNo string) ([]StockChangeLogDTO, error) {
	if orderNo == "" {
		return nil, shared.ErrInvalidArgument.WithMessage("order number is required")
	}
	entries, err := s.changeLogs.FindByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	dtos := make([]StockChangeLogDTO, 0, len(entries))
	for i := range entries {
		dtos = append(dtos, ToStockChangeLogDTO(&entries[i]))
	}
	return dtos, nil
}

func validateMutation(productID, skuID, quantity int64, orderNo string) error {
	if productID <= 0 {
		return shared.ErrInvalidArgument.WithMessage("product ID must be positive")
	}
	if skuID < 0 {
		return shared.ErrInvalidArgument.WithMessage("SKU ID cannot be negative")
	}
	if quantity <= 0 {
		return shared.ErrInvalidArgument.WithMessage("quantity must be positive")
	}
	if orderNo == "" {
		return shared.ErrInvalidArgument.WithMessage("order number is required")
	}
	return nil
}

func (s *StockService) recountLock(productID, skuID int64) *sync.Mutex {
	key := DeductLockKey(productID, skuID)
	mu, _ := s.recountLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *StockService) releaseLock(ctx context.Context, lock Lock) {
	if err := lock.Release(ctx); err != nil {
		s.logger.Warn("failed to release stock lock",
			zap.String("key", lock.Key()),
			zap.Error(err),
		)
	}
}

func (s *StockService) publishDomainEvents(ctx context.Context, record *stock.StockRecord) {
	if s.publisher == nil {
		return
	}
	events := record.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish stock events", zap.Error(err))
	}
	record.ClearDomainEvents()
}

// writeChangeLog appends an audit entry. The mutation is already committed
// at this point, so a log failure is reported but does not fail the
// operation.
func (s *StockService) writeChangeLog(ctx context.Context, record *stock.StockRecord, before, change int64, changeType stock.ChangeType, reason, orderNo string, operatorID int64) *uuid.UUID {
	entry, err := stock.NewStockChangeLog(record.ProductID, record.SkuID, before, record.Quantity, change, changeType)
	if err != nil {
		s.logger.Warn("failed to build stock change log entry", zap.Error(err))
		return nil
	}
	entry.WithReason(reason).WithOrderNo(orderNo).WithOperator(operatorID)

	if err := s.changeLogs.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to persist stock change log entry",
			zap.Int64("product_id", record.ProductID),
			zap.Int64("sku_id", record.SkuID),
			zap.Error(err),
		)
		return nil
	}
	return &entry.ID
}
