package stock

import (
	"context"
	"fmt"
	"time"
)

// Lock is a held mutual-exclusion lease. Release is safe to call once; a
// lease that already expired on the backend is released without touching
// anyone else's lock.
type Lock interface {
	// Key returns the lock key this lease guards
	Key() string
	// Release gives the lock back
	Release(ctx context.Context) error
}

// LockManager hands out exclusive locks keyed by arbitrary strings. Callers
// wait up to the configured window for the holder to release; a lease
// expires on its own after the TTL so a crashed holder cannot wedge the key
// forever.
type LockManager interface {
	// Acquire blocks until the lock is obtained or the wait window
	// elapses, in which case it returns ErrLockTimeout
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lock, error)
}

// DeductLockKey builds the mutual-exclusion key for stock mutations on a
// product/SKU pair. SKU 0 covers product-level stock.
func DeductLockKey(productID, skuID int64) string {
	return fmt.Sprintf("stock:deduct:%d:%d", productID, skuID)
}
