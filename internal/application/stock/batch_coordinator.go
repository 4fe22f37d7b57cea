package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mallstock/backend/internal/domain/compensation"
	"github.com/mallstock/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// BatchCoordinator executes multi-item deductions with all-or-nothing
// semantics. Every item is validated before anything runs; execution stops
// at the first failure, and the items already deducted are rolled back in
// reverse order. A rollback step that fails on the spot gets its own
// compensation record so the sweeper can finish the job later.
type BatchCoordinator struct {
	stocks        *StockService
	compensations compensation.Repository
	logger        *zap.Logger
}

// NewBatchCoordinator creates a new batch coordinator
func NewBatchCoordinator(stocks *StockService, compensations compensation.Repository, logger *zap.Logger) *BatchCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchCoordinator{
		stocks:        stocks,
		compensations: compensations,
		logger:        logger,
	}
}

// BatchDeduct deducts every item under one order number. Validation
// failures reject the whole batch before any stock moves.
func (c *BatchCoordinator) BatchDeduct(ctx context.Context, req BatchDeductRequest) (*BatchDeductResult, error) {
	if len(req.Items) == 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("batch must contain at least one item")
	}
	if req.OrderNo == "" {
		return nil, shared.ErrInvalidArgument.WithMessage("order number is required")
	}
	for i, item := range req.Items {
		if err := validateMutation(item.ProductID, item.SkuID, item.Quantity, req.OrderNo); err != nil {
			return nil, shared.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("item %d invalid: %s", i, err.Error()))
		}
	}

	results := make([]StockOperationResult, 0, len(req.Items))
	for i, item := range req.Items {
		res, err := c.stocks.DeductStock(ctx, DeductStockRequest{
			ProductID:  item.ProductID,
			SkuID:      item.SkuID,
			Quantity:   item.Quantity,
			OrderNo:    req.OrderNo,
			OperatorID: req.OperatorID,
		})
		if err != nil {
			c.logger.Warn("batch deduction stopped",
				zap.String("order_no", req.OrderNo),
				zap.Int("failed_index", i),
				zap.Error(err),
			)
			compensationIDs := c.rollbackCompleted(ctx, req, i)
			return &BatchDeductResult{
				Success:         false,
				Message:         fmt.Sprintf("item %d failed: %s", i, err.Error()),
				FailedIndex:     i,
				Results:         results,
				CompensationIDs: compensationIDs,
			}, nil
		}
		results = append(results, *res)
	}

	return &BatchDeductResult{
		Success:     true,
		Message:     "batch deducted",
		FailedIndex: -1,
		Results:     results,
	}, nil
}

// BatchRollback restores every line under one order number. Lines are
// validated up front, then executed with per-line isolation: a line that
// fails to roll back is reported in its slot while the rest proceed.
func (c *BatchCoordinator) BatchRollback(ctx context.Context, req BatchRollbackRequest) (*BatchRollbackResult, error) {
	if len(req.Items) == 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("batch must contain at least one item")
	}
	if req.OrderNo == "" {
		return nil, shared.ErrInvalidArgument.WithMessage("order number is required")
	}
	for i, item := range req.Items {
		if err := validateMutation(item.ProductID, item.SkuID, item.Quantity, req.OrderNo); err != nil {
			return nil, shared.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("item %d invalid: %s", i, err.Error()))
		}
	}

	batch := &BatchRollbackResult{Total: len(req.Items)}
	for i, item := range req.Items {
		res, err := c.stocks.RollbackStock(ctx, RollbackStockRequest{
			ProductID:  item.ProductID,
			SkuID:      item.SkuID,
			Quantity:   item.Quantity,
			OrderNo:    req.OrderNo,
			OperatorID: req.OperatorID,
		})
		if err != nil {
			c.logger.Warn("batch rollback line failed",
				zap.String("order_no", req.OrderNo),
				zap.Int("item_index", i),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err),
			)
			batch.Failed++
			batch.Results = append(batch.Results, StockOperationResult{
				Success: false,
				Message: err.Error(),
			})
			continue
		}
		batch.Succeeded++
		batch.Results = append(batch.Results, *res)
	}

	batch.Success = batch.Failed == 0
	batch.Message = fmt.Sprintf("batch rollback finished: %d succeeded, %d failed", batch.Succeeded, batch.Failed)
	return batch, nil
}

// rollbackCompleted undoes the first failedIndex deductions in reverse
// order. Failed rollbacks are parked in the compensation ledger instead of
// being retried inline.
func (c *BatchCoordinator) rollbackCompleted(ctx context.Context, req BatchDeductRequest, failedIndex int) []uuid.UUID {
	var compensationIDs []uuid.UUID

	for i := failedIndex - 1; i >= 0; i-- {
		item := req.Items[i]
		_, err := c.stocks.RollbackStock(ctx, RollbackStockRequest{
			ProductID:  item.ProductID,
			SkuID:      item.SkuID,
			Quantity:   item.Quantity,
			OrderNo:    req.OrderNo,
			OperatorID: req.OperatorID,
		})
		if err == nil {
			continue
		}

		c.logger.Error("batch rollback step failed, parking compensation",
			zap.String("order_no", req.OrderNo),
			zap.Int("item_index", i),
			zap.Int64("product_id", item.ProductID),
			zap.Error(err),
		)

		record, cerr := compensation.NewCompensationRecord(item.ProductID, item.SkuID, item.Quantity, req.OrderNo, compensation.OperationRollback, req.OperatorID)
		if cerr != nil {
			c.logger.Error("failed to build compensation record", zap.Error(cerr))
			continue
		}
		if cerr := c.compensations.Create(ctx, record); cerr != nil {
			c.logger.Error("failed to persist compensation record",
				zap.String("order_no", req.OrderNo),
				zap.Int64("product_id", item.ProductID),
				zap.Error(cerr),
			)
			continue
		}
		compensationIDs = append(compensationIDs, record.ID)
	}

	return compensationIDs
}
