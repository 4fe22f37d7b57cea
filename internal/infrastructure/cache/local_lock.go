package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mallstock/backend/internal/domain/shared"
)

// LocalLockRegistry provides process-local mutual exclusion keyed by
// string. Entries are created lazily and kept for the process lifetime; the
// key space (product/SKU pairs under mutation) is small enough that this
// never becomes a leak in practice.
type LocalLockRegistry struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLockRegistry creates an empty registry
func NewLocalLockRegistry() *LocalLockRegistry {
	return &LocalLockRegistry{
		slots: make(map[string]chan struct{}),
	}
}

func (r *LocalLockRegistry) slot(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		r.slots[key] = s
	}
	return s
}

// Acquire obtains the lock for key, waiting up to wait. It returns
// ErrLockTimeout when the holder does not release in time.
func (r *LocalLockRegistry) Acquire(ctx context.Context, key string, wait time.Duration) (*LocalLock, error) {
	s := r.slot(key)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return &LocalLock{key: key, slot: s}, nil
	case <-timer.C:
		return nil, shared.ErrLockTimeout.WithMessage("local lock wait window elapsed for key " + key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LocalLock is a held process-local lock
type LocalLock struct {
	key  string
	slot chan struct{}
	once sync.Once
}

// Key returns the lock key
func (l *LocalLock) Key() string {
	return l.key
}

// Release gives the lock back. Calling it more than once is a no-op.
func (l *LocalLock) Release(_ context.Context) error {
	l.once.Do(func() {
		<-l.slot
	})
	return nil
}
