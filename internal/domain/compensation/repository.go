package compensation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mallstock/backend/internal/domain/shared"
)

// Repository defines the interface for compensation record persistence
type Repository interface {
	// FindByID retrieves a compensation record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*CompensationRecord, error)

	// Create persists a new compensation record
	Create(ctx context.Context, record *CompensationRecord) error

	// SaveWithLock persists the record with a compare-and-swap on the
	// version column. Returns ErrConcurrencyConflict when another writer
	// committed first.
	SaveWithLock(ctx context.Context, record *CompensationRecord) error

	// FindOpenByKey retrieves the PENDING record for an
	// order/operation/product/SKU tuple, the natural key of an open
	// compensation
	FindOpenByKey(ctx context.Context, orderNo string, operationType OperationType, productID, skuID int64) (*CompensationRecord, error)

	// FindByStatus lists records created inside the optional time window,
	// newest first. A nil status matches every status.
	FindByStatus(ctx context.Context, status *Status, createdAfter, createdBefore *time.Time, filter shared.Filter) ([]CompensationRecord, int64, error)

	// FindStalePending lists PENDING records created before the cutoff,
	// oldest first, capped at limit
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]CompensationRecord, error)

	// DeleteTerminalBefore removes SUCCESS and CANCELLED records not
	// updated since the cutoff and returns how many were purged
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// FindTerminalBefore lists SUCCESS and CANCELLED records not updated
	// since the cutoff, for archival ahead of a purge
	FindTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]CompensationRecord, error)
}
