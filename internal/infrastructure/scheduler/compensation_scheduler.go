// Package scheduler runs the background loops that keep the compensation
// ledger moving: re-driving stale pending records and purging expired ones.
package scheduler

import (
	"context"
	"sync"
	"time"

	compensationapp "github.com/mallstock/backend/internal/application/compensation"
	"go.uber.org/zap"
)

// LedgerDriver is the slice of the compensation service the scheduler needs
type LedgerDriver interface {
	ProcessStalePending(ctx context.Context) (*compensationapp.SweepStats, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

// CompensationSchedulerConfig holds the loop intervals
type CompensationSchedulerConfig struct {
	// SweepInterval is how often stale pending records are re-driven
	SweepInterval time.Duration
	// CleanupInterval is how often expired terminal records are purged
	CleanupInterval time.Duration
}

// DefaultCompensationSchedulerConfig returns the default intervals
func DefaultCompensationSchedulerConfig() CompensationSchedulerConfig {
	return CompensationSchedulerConfig{
		SweepInterval:   time.Hour,
		CleanupInterval: time.Hour,
	}
}

// CompensationScheduler periodically sweeps and cleans the compensation
// ledger until stopped.
type CompensationScheduler struct {
	config CompensationSchedulerConfig
	driver LedgerDriver
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewCompensationScheduler creates a new compensation scheduler
func NewCompensationScheduler(
	config CompensationSchedulerConfig,
	driver LedgerDriver,
	logger *zap.Logger,
) *CompensationScheduler {
	defaults := DefaultCompensationSchedulerConfig()
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompensationScheduler{
		config: config,
		driver: driver,
		logger: logger,
	}
}

// Start starts the sweep and cleanup loops
func (s *CompensationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.sweepLoop(ctx)
	go s.cleanupLoop(ctx)

	s.logger.Info("compensation scheduler started",
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
	)

	return nil
}

// Stop stops the loops and waits for in-flight work to finish
func (s *CompensationScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("compensation scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweepLoop re-drives stale pending records on every tick
func (s *CompensationScheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// cleanupLoop purges expired terminal records on every tick
func (s *CompensationScheduler) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *CompensationScheduler) runSweep(ctx context.Context) {
	stats, err := s.driver.ProcessStalePending(ctx)
	if err != nil {
		s.logger.Error("compensation sweep failed", zap.Error(err))
		return
	}
	if stats.Scanned > 0 {
		s.logger.Info("compensation sweep completed",
			zap.Int("scanned", stats.Scanned),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("failed", stats.Failed),
		)
	}
}

func (s *CompensationScheduler) runCleanup(ctx context.Context) {
	purged, err := s.driver.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error("compensation cleanup failed", zap.Error(err))
		return
	}
	if purged > 0 {
		s.logger.Info("compensation cleanup completed", zap.Int64("purged", purged))
	}
}
