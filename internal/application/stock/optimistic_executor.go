package stock

import (
	"context"
	"errors"
	"time"

	"github.com/mallstock/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Default optimistic retry parameters
const (
	DefaultMaxAttempts   = 3
	DefaultRetryInterval = 100 * time.Millisecond
)

// OptimisticExecutor runs a read-mutate-save attempt and retries it when
// the save loses the version compare-and-swap. Only CONCURRENCY_CONFLICT is
// retried: business rejections such as insufficient stock come back
// unchanged from the first attempt.
type OptimisticExecutor struct {
	maxAttempts   int
	retryInterval time.Duration
	logger        *zap.Logger
}

// NewOptimisticExecutor creates an executor. Non-positive parameters fall
// back to the defaults.
func NewOptimisticExecutor(maxAttempts int, retryInterval time.Duration, logger *zap.Logger) *OptimisticExecutor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OptimisticExecutor{
		maxAttempts:   maxAttempts,
		retryInterval: retryInterval,
		logger:        logger,
	}
}

// Execute runs attempt up to the configured number of times. Between
// conflicted attempts it sleeps for the retry interval, honouring context
// cancellation. When every attempt loses the race it returns
// ErrConcurrencyExhausted.
func (e *OptimisticExecutor) Execute(ctx context.Context, operation string, attempt func(ctx context.Context) error) error {
	for i := 1; i <= e.maxAttempts; i++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}

		e.logger.Debug("optimistic save conflicted",
			zap.String("operation", operation),
			zap.Int("attempt", i),
			zap.Int("max_attempts", e.maxAttempts),
		)

		if i == e.maxAttempts {
			break
		}

		timer := time.NewTimer(e.retryInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return shared.ErrConcurrencyExhausted.WithMessage(
		"operation " + operation + " kept losing to concurrent writers")
}
