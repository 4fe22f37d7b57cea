// Package compensation drives the compensation ledger: creating records for
// stock operations that must not be lost, re-executing them until they
// stick, and cleaning up the ledger afterwards.
package compensation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	stockapp "github.com/mallstock/backend/internal/application/stock"
	"github.com/mallstock/backend/internal/domain/compensation"
	"github.com/mallstock/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// StockMutator is the slice of the stock engine the compensation service
// needs to re-drive parked operations
type StockMutator interface {
	DeductStock(ctx context.Context, req stockapp.DeductStockRequest) (*stockapp.StockOperationResult, error)
	RollbackStock(ctx context.Context, req stockapp.RollbackStockRequest) (*stockapp.StockOperationResult, error)
}

// InflightGuard marks records as in flight so concurrent sweepers skip
// records someone else is already driving
type InflightGuard interface {
	TryBegin(ctx context.Context, key string, ttl time.Duration) (bool, error)
	End(ctx context.Context, key string) error
}

// LedgerArchiver receives terminal records before they are purged from the
// ledger
type LedgerArchiver interface {
	Archive(ctx context.Context, records []compensation.CompensationRecord) error
}

// Config holds tunables for the compensation service
type Config struct {
	// RedriveAfter is how old a pending record must be before the sweeper
	// picks it up
	RedriveAfter time.Duration
	// SweepBatchSize caps how many stale records one sweep drives
	SweepBatchSize int
	// Retention is how long terminal records stay in the ledger
	Retention time.Duration
	// InflightTTL is the expiry of the in-flight mark on an executing
	// record
	InflightTTL time.Duration
	// NetworkMaxRetries is the number of immediate retries for transient
	// failures, tracked separately from the persistent retry count
	NetworkMaxRetries int
	// NetworkRetryDelay is the pause between those immediate retries
	NetworkRetryDelay time.Duration
}

// DefaultConfig returns the default compensation tunables
func DefaultConfig() Config {
	return Config{
		RedriveAfter:      time.Hour,
		SweepBatchSize:    100,
		Retention:         24 * time.Hour,
		InflightTTL:       5 * time.Minute,
		NetworkMaxRetries: 5,
		NetworkRetryDelay: 2 * time.Second,
	}
}

// Service implements the compensation ledger operations
type Service struct {
	records  compensation.Repository
	stocks   StockMutator
	guard    InflightGuard
	archiver LedgerArchiver
	config   Config
	logger   *zap.Logger
}

// NewService creates a new compensation service. The archiver is optional;
// without one, purged records are simply deleted.
func NewService(
	records compensation.Repository,
	stocks StockMutator,
	guard InflightGuard,
	config Config,
	logger *zap.Logger,
) *Service {
	defaults := DefaultConfig()
	if config.RedriveAfter <= 0 {
		config.RedriveAfter = defaults.RedriveAfter
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = defaults.SweepBatchSize
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.InflightTTL <= 0 {
		config.InflightTTL = defaults.InflightTTL
	}
	if config.NetworkMaxRetries <= 0 {
		config.NetworkMaxRetries = defaults.NetworkMaxRetries
	}
	if config.NetworkRetryDelay <= 0 {
		config.NetworkRetryDelay = defaults.NetworkRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		records: records,
		stocks:  stocks,
		guard:   guard,
		config:  config,
		logger:  logger,
	}
}

// WithArchiver sets the archive sink for purged records
func (s *Service) WithArchiver(archiver LedgerArchiver) *Service {
	s.archiver = archiver
	return s
}

// CreateCompensation parks a stock operation in the ledger. Creation is
// idempotent on the order/operation/product/SKU tuple: parking an operation
// that already has an open record returns the existing record instead of
// queueing a second one for the sweeper.
func (s *Service) CreateCompensation(ctx context.Context, req CreateCompensationRequest) (*CompensationDTO, error) {
	record, err := compensation.NewCompensationRecord(
		req.ProductID, req.SkuID, req.Quantity, req.OrderNo,
		compensation.OperationType(req.OperationType), req.OperatorID,
	)
	if err != nil {
		return nil, err
	}
	if err := s.records.Create(ctx, record); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			existing, ferr := s.records.FindOpenByKey(ctx, record.OrderNo, record.OperationType, record.ProductID, record.SkuID)
			if ferr != nil {
				return nil, ferr
			}
			s.logger.Info("reusing open compensation record",
				zap.String("id", existing.ID.String()),
				zap.String("order_no", existing.OrderNo),
				zap.String("operation", string(existing.OperationType)),
			)
			dto := ToCompensationDTO(existing)
			return &dto, nil
		}
		return nil, err
	}

	s.logger.Info("compensation record created",
		zap.String("id", record.ID.String()),
		zap.String("order_no", record.OrderNo),
		zap.String("operation", string(record.OperationType)),
	)

	dto := ToCompensationDTO(record)
	return &dto, nil
}

// Execute drives one compensation record. Executing a record that already
// succeeded is a no-op success; cancelled and permanently failed records
// are rejected. One call consumes one of the record's retry attempts.
func (s *Service) Execute(ctx context.Context, id uuid.UUID) (*ExecutionResult, error) {
	if s.guard != nil {
		ok, err := s.guard.TryBegin(ctx, id.String(), s.config.InflightTTL)
		if err != nil {
			s.logger.Warn("in-flight guard unavailable, continuing", zap.Error(err))
		} else if !ok {
			return &ExecutionResult{
				Executed: false,
				Success:  false,
				Message:  "record is already being driven by another worker",
			}, nil
		} else {
			defer func() {
				if err := s.guard.End(ctx, id.String()); err != nil {
					s.logger.Warn("failed to clear in-flight mark", zap.Error(err))
				}
			}()
		}
	}

	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.Status == compensation.StatusSuccess {
		dto := ToCompensationDTO(record)
		return &ExecutionResult{
			Executed: false,
			Success:  true,
			Message:  "record already compensated",
			Record:   dto,
		}, nil
	}

	if err := record.BeginAttempt(); err != nil {
		// an exhausted record just flipped to FAILED; persist that
		if record.Status == compensation.StatusFailed {
			if serr := s.records.SaveWithLock(ctx, record); serr != nil {
				s.logger.Warn("failed to persist exhausted compensation", zap.Error(serr))
			}
		}
		return nil, err
	}
	// claim the attempt before touching stock, so a crash mid-execution
	// still counts it
	if err := s.records.SaveWithLock(ctx, record); err != nil {
		return nil, err
	}

	execErr := s.dispatch(ctx, record)
	if execErr != nil && s.isTransient(execErr) {
		execErr = s.retryTransient(ctx, record, execErr)
	}

	if execErr != nil {
		record.MarkAttemptFailed(execErr.Error())
		if err := s.records.SaveWithLock(ctx, record); err != nil {
			return nil, err
		}
		s.logger.Warn("compensation attempt failed",
			zap.String("id", record.ID.String()),
			zap.Int("retry_count", record.RetryCount),
			zap.String("status", string(record.Status)),
			zap.Error(execErr),
		)
		dto := ToCompensationDTO(record)
		return &ExecutionResult{
			Executed: true,
			Success:  false,
			Message:  execErr.Error(),
			Record:   dto,
		}, nil
	}

	record.MarkSuccess()
	if err := s.records.SaveWithLock(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("compensation executed",
		zap.String("id", record.ID.String()),
		zap.String("order_no", record.OrderNo),
		zap.String("operation", string(record.OperationType)),
	)

	dto := ToCompensationDTO(record)
	return &ExecutionResult{
		Executed: true,
		Success:  true,
		Message:  "compensation executed",
		Record:   dto,
	}, nil
}

// Cancel abandons a compensation record, recording why it was given up on.
// Successful records cannot be cancelled; cancelling twice is a no-op that
// keeps the first reason.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*CompensationDTO, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	alreadyCancelled := record.Status == compensation.StatusCancelled
	if err := record.Cancel(reason); err != nil {
		return nil, err
	}
	if !alreadyCancelled {
		if err := s.records.SaveWithLock(ctx, record); err != nil {
			return nil, err
		}
	}
	dto := ToCompensationDTO(record)
	return &dto, nil
}

// GetByID returns one compensation record
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*CompensationDTO, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := ToCompensationDTO(record)
	return &dto, nil
}

// List lists ledger records inside an optional creation time window,
// newest first. A nil status lists every status; FAILED records stay
// reachable this way after their retries run out.
func (s *Service) List(ctx context.Context, status *compensation.Status, createdAfter, createdBefore *time.Time, filter shared.Filter) ([]CompensationDTO, int64, error) {
	records, total, err := s.records.FindByStatus(ctx, status, createdAfter, createdBefore, filter)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]CompensationDTO, 0, len(records))
	for i := range records {
		dtos = append(dtos, ToCompensationDTO(&records[i]))
	}
	return dtos, total, nil
}

// ExecuteBatch drives several compensation records, isolating each record
// so one failure never stops the rest. The batch succeeds only when every
// record does.
func (s *Service) ExecuteBatch(ctx context.Context, ids []uuid.UUID) (*BatchExecutionResult, error) {
	if len(ids) == 0 {
		return nil, shared.ErrInvalidArgument.WithMessage("at least one compensation ID is required")
	}

	batch := &BatchExecutionResult{Total: len(ids)}
	for _, id := range ids {
		result, err := s.Execute(ctx, id)
		if err != nil {
			batch.Failed++
			batch.Results = append(batch.Results, ExecutionResult{
				Executed: false,
				Success:  false,
				Message:  err.Error(),
			})
			continue
		}
		batch.Results = append(batch.Results, *result)
		if result.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}

	batch.Success = batch.Failed == 0
	batch.Message = fmt.Sprintf("batch compensation finished: %d succeeded, %d failed", batch.Succeeded, batch.Failed)

	s.logger.Info("batch compensation finished",
		zap.Int("total", batch.Total),
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed),
	)
	return batch, nil
}

// ProcessStalePending re-drives pending records older than the re-drive
// threshold. Failures on one record never stop the sweep.
func (s *Service) ProcessStalePending(ctx context.Context) (*SweepStats, error) {
	cutoff := time.Now().Add(-s.config.RedriveAfter)
	stale, err := s.records.FindStalePending(ctx, cutoff, s.config.SweepBatchSize)
	if err != nil {
		return nil, err
	}

	stats := &SweepStats{Scanned: len(stale)}
	for i := range stale {
		result, err := s.Execute(ctx, stale[i].ID)
		switch {
		case err != nil:
			stats.Errors++
			s.logger.Warn("sweep could not drive compensation",
				zap.String("id", stale[i].ID.String()),
				zap.Error(err),
			)
		case !result.Executed:
			stats.Skipped++
		case result.Success:
			stats.Succeeded++
		default:
			stats.Failed++
		}
	}

	if stats.Scanned > 0 {
		s.logger.Info("compensation sweep finished",
			zap.Int("scanned", stats.Scanned),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped),
			zap.Int("errors", stats.Errors),
		)
	}
	return stats, nil
}

// CleanupExpired purges terminal records older than the retention window,
// archiving them first when an archiver is configured.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.config.Retention)

	if s.archiver != nil {
		expired, err := s.records.FindTerminalBefore(ctx, cutoff, s.config.SweepBatchSize)
		if err != nil {
			return 0, err
		}
		if len(expired) > 0 {
			if err := s.archiver.Archive(ctx, expired); err != nil {
				// keep the records until the archive succeeds
				return 0, err
			}
		}
	}

	purged, err := s.records.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.Info("purged expired compensation records", zap.Int64("purged", purged))
	}
	return purged, nil
}

// dispatch applies the parked operation through the stock engine
func (s *Service) dispatch(ctx context.Context, record *compensation.CompensationRecord) error {
	switch record.OperationType {
	case compensation.OperationDeduct:
		_, err := s.stocks.DeductStock(ctx, stockapp.DeductStockRequest{
			ProductID:  record.ProductID,
			SkuID:      record.SkuID,
			Quantity:   record.Quantity,
			OrderNo:    record.OrderNo,
			OperatorID: record.OperatorID,
		})
		return err
	case compensation.OperationRollback:
		_, err := s.stocks.RollbackStock(ctx, stockapp.RollbackStockRequest{
			ProductID:  record.ProductID,
			SkuID:      record.SkuID,
			Quantity:   record.Quantity,
			OrderNo:    record.OrderNo,
			OperatorID: record.OperatorID,
		})
		return err
	default:
		return shared.ErrInvalidState.WithMessage("unknown operation type: " + string(record.OperationType))
	}
}

// isTransient classifies failures worth immediate re-tries: contention and
// infrastructure trouble, not business rejections.
func (s *Service) isTransient(err error) bool {
	return errors.Is(err, shared.ErrLockTimeout) ||
		errors.Is(err, shared.ErrConcurrencyExhausted) ||
		errors.Is(err, shared.ErrPersistence)
}

// retryTransient re-runs the operation on its own short retry track. These
// attempts do not consume the record's persistent retry count.
func (s *Service) retryTransient(ctx context.Context, record *compensation.CompensationRecord, lastErr error) error {
	for i := 1; i <= s.config.NetworkMaxRetries; i++ {
		timer := time.NewTimer(s.config.NetworkRetryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}

		s.logger.Info("retrying compensation after transient failure",
			zap.String("id", record.ID.String()),
			zap.Int("attempt", i),
			zap.Int("max_attempts", s.config.NetworkMaxRetries),
		)

		lastErr = s.dispatch(ctx, record)
		if lastErr == nil {
			return nil
		}
		if !s.isTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
