package compensation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	stockapp "github.com/mallstock/backend/internal/application/stock"
	"github.com/mallstock/backend/internal/domain/compensation"
	"github.com/mallstock/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRepository is a mock implementation of compensation.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindByID(ctx context.Context, id uuid.UUID) (*compensation.CompensationRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compensation.CompensationRecord), args.Error(1)
}

func (m *MockRepository) Create(ctx context.Context, record *compensation.CompensationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) SaveWithLock(ctx context.Context, record *compensation.CompensationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) FindOpenByKey(ctx context.Context, orderNo string, operationType compensation.OperationType, productID, skuID int64) (*compensation.CompensationRecord, error) {
	args := m.Called(ctx, orderNo, operationType, productID, skuID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compensation.CompensationRecord), args.Error(1)
}

func (m *MockRepository) FindByStatus(ctx context.Context, status *compensation.Status, createdAfter, createdBefore *time.Time, filter shared.Filter) ([]compensation.CompensationRecord, int64, error) {
	args := m.Called(ctx, status, createdAfter, createdBefore, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]compensation.CompensationRecord), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]compensation.CompensationRecord, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]compensation.CompensationRecord), args.Error(1)
}

func (m *MockRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) FindTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]compensation.CompensationRecord, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]compensation.CompensationRecord), args.Error(1)
}

// MockStockMutator is a mock implementation of StockMutator
type MockStockMutator struct {
	mock.Mock
}

func (m *MockStockMutator) DeductStock(ctx context.Context, req stockapp.DeductStockRequest) (*stockapp.StockOperationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stockapp.StockOperationResult), args.Error(1)
}

func (m *MockStockMutator) RollbackStock(ctx context.Context, req stockapp.RollbackStockRequest) (*stockapp.StockOperationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stockapp.StockOperationResult), args.Error(1)
}

// blockingGuard always reports the key as taken
type blockingGuard struct{}

func (blockingGuard) TryBegin(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}
func (blockingGuard) End(context.Context, string) error { return nil }

// memoryGuard is a minimal in-flight guard for tests
type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{keys: make(map[string]bool)}
}

func (g *memoryGuard) TryBegin(_ context.Context, key string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

func (g *memoryGuard) End(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NetworkRetryDelay = time.Millisecond
	return cfg
}

func pendingRecord(t *testing.T) *compensation.CompensationRecord {
	t.Helper()
	record, err := compensation.NewCompensationRecord(1001, 2001, 10, "ORD-001", compensation.OperationRollback, 0)
	require.NoError(t, err)
	return record
}

func okResult() *stockapp.StockOperationResult {
	return &stockapp.StockOperationResult{Success: true, Message: "ok"}
}

func TestService_CreateCompensation(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending record stamped with the operator", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		repo.On("Create", mock.Anything, mock.MatchedBy(func(rec *compensation.CompensationRecord) bool {
			return rec.OperatorID == 501
		})).Return(nil)

		dto, err := svc.CreateCompensation(ctx, CreateCompensationRequest{
			ProductID: 1001, SkuID: 2001, Quantity: 10, OrderNo: "ORD-001", OperationType: "DEDUCT", OperatorID: 501,
		})

		require.NoError(t, err)
		assert.Equal(t, "PENDING", dto.Status)
		assert.Equal(t, 0, dto.RetryCount)
		assert.Equal(t, int64(501), dto.OperatorID)
	})

	t.Run("re-parking an open operation returns the existing record", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		existing := pendingRecord(t)
		repo.On("Create", mock.Anything, mock.Anything).Return(shared.ErrAlreadyExists)
		repo.On("FindOpenByKey", mock.Anything, "ORD-001", compensation.OperationRollback, int64(1001), int64(2001)).
			Return(existing, nil)

		dto, err := svc.CreateCompensation(ctx, CreateCompensationRequest{
			ProductID: 1001, SkuID: 2001, Quantity: 10, OrderNo: "ORD-001", OperationType: "ROLLBACK",
		})

		require.NoError(t, err)
		assert.Equal(t, existing.ID, dto.ID, "no second ledger entry for the same operation")
	})

	t.Run("rejects invalid operation type", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		_, err := svc.CreateCompensation(ctx, CreateCompensationRequest{
			ProductID: 1001, Quantity: 10, OrderNo: "ORD-001", OperationType: "TRANSFER",
		})

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidArgument))
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestService_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("drives a rollback to success", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, newMemoryGuard(), testConfig(), zap.NewNop())

		record := pendingRecord(t)
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)
		repo.On("SaveWithLock", mock.Anything, record).Return(nil)
		stocks.On("RollbackStock", mock.Anything, mock.MatchedBy(func(req stockapp.RollbackStockRequest) bool {
			return req.ProductID == 1001 && req.SkuID == 2001 && req.Quantity == 10 && req.OrderNo == "ORD-001"
		})).Return(okResult(), nil)

		result, err := svc.Execute(ctx, record.ID)

		require.NoError(t, err)
		assert.True(t, result.Executed)
		assert.True(t, result.Success)
		assert.Equal(t, "SUCCESS", result.Record.Status)
		assert.Equal(t, 1, result.Record.RetryCount)
		assert.NotNil(t, result.Record.ExecuteTime)
		repo.AssertNumberOfCalls(t, "SaveWithLock", 2)
	})

	t.Run("dispatches deduct operations to the stock engine", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, newMemoryGuard(), testConfig(), zap.NewNop())

		record, err := compensation.NewCompensationRecord(1001, 0, 5, "ORD-002", compensation.OperationDeduct, 0)
		require.NoError(t, err)
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)
		repo.On("SaveWithLock", mock.Anything, record).Return(nil)
		stocks.On("DeductStock", mock.Anything, mock.Anything).Return(okResult(), nil)

		result, err := svc.Execute(ctx, record.ID)

		require.NoError(t, err)
		assert.True(t, result.Success)
		stocks.AssertCalled(t, "DeductStock", mock.Anything, mock.Anything)
		stocks.AssertNotCalled(t, "RollbackStock", mock.Anything, mock.Anything)
	})

	t.Run("succeeded record is a no-op", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, newMemoryGuard(), testConfig(), zap.NewNop())

		record := pendingRecord(t)
		require.NoError(t, record.BeginAttempt())
		record.MarkSuccess()
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)

		result, err := svc.Execute(ctx, record.ID)

		require.NoError(t, err)
		assert.False(t, result.Executed)
		assert.True(t, result.Success)
		stocks.AssertNotCalled(t, "RollbackStock", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("cancelled record is rejected", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, newMemoryGuard(), testConfig(), zap.NewNop())

		record := pendingRecord(t)
		require.NoError(t, record.Cancel(""))
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)

		_, err := svc.Execute(ctx, record.ID)

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})

	t.Run("business failure keeps the record pending with one attempt used", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, newMemoryGuard(), testConfig(), zap.NewNop())

		record := pendingRecord(t)
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)
		repo.On("SaveWithLock", mock.Anything, record).Return(nil)
		stocks.On("RollbackStock", mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound)

		result, err := svc.Execute(ctx, record.ID)

		require.NoError(t, err)
		assert.True(t, result.Executed)
		assert.False(t, result.Success)
		assert.Equal(t, "PENDING", result.Record.Status)
		assert.Equal(t, 1, result.Record.RetryCount)
		stocks.AssertNumberOfCalls(t, "RollbackStock", 1)
	})

	t.Run("exhausted record flips to failed", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, newMemoryGuard(), testConfig(), zap.NewNop())

		record := pendingRecord(t)
		record.RetryCount = record.MaxRetries
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)
		repo.On("SaveWithLock", mock.Anything, record).Return(nil)

		_, err := svc.Execute(ctx, record.ID)

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
		assert.Equal(t, compensation.StatusFailed, record.Status)
		stocks.AssertNotCalled(t, "RollbackStock", mock.Anything, mock.Anything)
	})

	t.Run("transient failures get immediate retries without extra attempts", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, newMemoryGuard(), testConfig(), zap.NewNop())

		record := pendingRecord(t)
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)
		repo.On("SaveWithLock", mock.Anything, record).Return(nil)
		stocks.On("RollbackStock", mock.Anything, mock.Anything).Return(nil, shared.ErrLockTimeout).Times(2)
		stocks.On("RollbackStock", mock.Anything, mock.Anything).Return(okResult(), nil).Once()

		result, err := svc.Execute(ctx, record.ID)

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 1, result.Record.RetryCount, "immediate retries do not consume ledger attempts")
		stocks.AssertNumberOfCalls(t, "RollbackStock", 3)
	})

	t.Run("skips records already in flight", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, blockingGuard{}, testConfig(), zap.NewNop())

		result, err := svc.Execute(ctx, uuid.New())

		require.NoError(t, err)
		assert.False(t, result.Executed)
		repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels pending record and keeps the reason", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		record := pendingRecord(t)
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)
		repo.On("SaveWithLock", mock.Anything, record).Return(nil)

		dto, err := svc.Cancel(ctx, record.ID, "order refunded through support")

		require.NoError(t, err)
		assert.Equal(t, "CANCELLED", dto.Status)
		assert.Equal(t, "order refunded through support", dto.FailureReason)
	})

	t.Run("missing reason records the default", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		record := pendingRecord(t)
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)
		repo.On("SaveWithLock", mock.Anything, record).Return(nil)

		dto, err := svc.Cancel(ctx, record.ID, "")

		require.NoError(t, err)
		assert.Equal(t, compensation.CancelReasonDefault, dto.FailureReason)
	})

	t.Run("cancelling twice is a no-op", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		record := pendingRecord(t)
		require.NoError(t, record.Cancel("first reason"))
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)

		dto, err := svc.Cancel(ctx, record.ID, "second reason")

		require.NoError(t, err)
		assert.Equal(t, "CANCELLED", dto.Status)
		assert.Equal(t, "first reason", dto.FailureReason)
		repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("successful record cannot be cancelled", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		record := pendingRecord(t)
		require.NoError(t, record.BeginAttempt())
		record.MarkSuccess()
		repo.On("FindByID", mock.Anything, record.ID).Return(record, nil)

		_, err := svc.Cancel(ctx, record.ID, "too late")

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})
}

func TestService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards the status filter", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		failed := pendingRecord(t)
		failed.Status = compensation.StatusFailed
		status := compensation.StatusFailed
		repo.On("FindByStatus", mock.Anything, &status, (*time.Time)(nil), (*time.Time)(nil), mock.AnythingOfType("shared.Filter")).
			Return([]compensation.CompensationRecord{*failed}, int64(1), nil)

		dtos, total, err := svc.List(ctx, &status, nil, nil, shared.Filter{Page: 1, PageSize: 20})

		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, dtos, 1)
		assert.Equal(t, "FAILED", dtos[0].Status)
	})

	t.Run("nil status lists every status", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		repo.On("FindByStatus", mock.Anything, (*compensation.Status)(nil), (*time.Time)(nil), (*time.Time)(nil), mock.AnythingOfType("shared.Filter")).
			Return([]compensation.CompensationRecord{}, int64(0), nil)

		_, _, err := svc.List(ctx, nil, nil, nil, shared.Filter{Page: 1, PageSize: 20})

		require.NoError(t, err)
		repo.AssertCalled(t, "FindByStatus", mock.Anything, (*compensation.Status)(nil), (*time.Time)(nil), (*time.Time)(nil), mock.AnythingOfType("shared.Filter"))
	})
}

func TestService_ExecuteBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("drives every record and isolates failures", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, newMemoryGuard(), testConfig(), zap.NewNop())

		good := pendingRecord(t)
		missing := uuid.New()
		repo.On("FindByID", mock.Anything, good.ID).Return(good, nil)
		repo.On("FindByID", mock.Anything, missing).Return(nil, shared.ErrNotFound)
		repo.On("SaveWithLock", mock.Anything, good).Return(nil)
		stocks.On("RollbackStock", mock.Anything, mock.Anything).Return(okResult(), nil)

		result, err := svc.ExecuteBatch(ctx, []uuid.UUID{good.ID, missing})

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, 2, result.Total)
		assert.Equal(t, 1, result.Succeeded)
		assert.Equal(t, 1, result.Failed)
		require.Len(t, result.Results, 2)
		assert.True(t, result.Results[0].Success)
		assert.False(t, result.Results[1].Success)
	})

	t.Run("succeeds when every record does", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, newMemoryGuard(), testConfig(), zap.NewNop())

		a := pendingRecord(t)
		b := pendingRecord(t)
		repo.On("FindByID", mock.Anything, a.ID).Return(a, nil)
		repo.On("FindByID", mock.Anything, b.ID).Return(b, nil)
		repo.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
		stocks.On("RollbackStock", mock.Anything, mock.Anything).Return(okResult(), nil)

		result, err := svc.ExecuteBatch(ctx, []uuid.UUID{a.ID, b.ID})

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 2, result.Succeeded)
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		_, err := svc.ExecuteBatch(ctx, nil)

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidArgument))
		repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})
}

func TestService_ProcessStalePending(t *testing.T) {
	ctx := context.Background()

	t.Run("drives stale records and isolates failures", func(t *testing.T) {
		repo := new(MockRepository)
		stocks := new(MockStockMutator)
		svc := NewService(repo, stocks, newMemoryGuard(), testConfig(), zap.NewNop())

		good := pendingRecord(t)
		bad := pendingRecord(t)
		repo.On("FindStalePending", mock.Anything, mock.AnythingOfType("time.Time"), 100).
			Return([]compensation.CompensationRecord{*good, *bad}, nil)
		repo.On("FindByID", mock.Anything, good.ID).Return(good, nil)
		repo.On("FindByID", mock.Anything, bad.ID).Return(nil, shared.ErrPersistence)
		repo.On("SaveWithLock", mock.Anything, good).Return(nil)
		stocks.On("RollbackStock", mock.Anything, mock.Anything).Return(okResult(), nil)

		stats, err := svc.ProcessStalePending(ctx)

		require.NoError(t, err)
		assert.Equal(t, 2, stats.Scanned)
		assert.Equal(t, 1, stats.Succeeded)
		assert.Equal(t, 1, stats.Errors)
	})

	t.Run("propagates listing failure", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		repo.On("FindStalePending", mock.Anything, mock.Anything, mock.Anything).Return(nil, shared.ErrPersistence)

		_, err := svc.ProcessStalePending(ctx)

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrPersistence))
	})
}

type captureArchiver struct {
	archived int
	err      error
}

func (a *captureArchiver) Archive(_ context.Context, records []compensation.CompensationRecord) error {
	if a.err != nil {
		return a.err
	}
	a.archived += len(records)
	return nil
}

func TestService_CleanupExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("purges terminal records", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop())

		repo.On("DeleteTerminalBefore", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(4), nil)

		purged, err := svc.CleanupExpired(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(4), purged)
	})

	t.Run("archives before purging", func(t *testing.T) {
		repo := new(MockRepository)
		archiver := &captureArchiver{}
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop()).WithArchiver(archiver)

		expired := []compensation.CompensationRecord{*pendingRecord(t), *pendingRecord(t)}
		repo.On("FindTerminalBefore", mock.Anything, mock.AnythingOfType("time.Time"), 100).Return(expired, nil)
		repo.On("DeleteTerminalBefore", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(2), nil)

		purged, err := svc.CleanupExpired(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(2), purged)
		assert.Equal(t, 2, archiver.archived)
	})

	t.Run("keeps records when archiving fails", func(t *testing.T) {
		repo := new(MockRepository)
		archiver := &captureArchiver{err: errors.New("bucket unreachable")}
		svc := NewService(repo, new(MockStockMutator), newMemoryGuard(), testConfig(), zap.NewNop()).WithArchiver(archiver)

		expired := []compensation.CompensationRecord{*pendingRecord(t)}
		repo.On("FindTerminalBefore", mock.Anything, mock.AnythingOfType("time.Time"), 100).Return(expired, nil)

		_, err := svc.CleanupExpired(ctx)

		require.Error(t, err)
		repo.AssertNotCalled(t, "DeleteTerminalBefore", mock.Anything, mock.Anything)
	})
}
