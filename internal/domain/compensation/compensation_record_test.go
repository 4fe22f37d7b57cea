package compensation

import (
	"errors"
	"testing"

	"github.com/mallstock/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestRecord(t *testing.T) *CompensationRecord {
	t.Helper()
	record, err := NewCompensationRecord(1001, 2001, 10, "ORD-001", OperationRollback, 0)
	require.NoError(t, err)
	return record
}

func TestNewCompensationRecord(t *testing.T) {
	t.Run("creates pending record", func(t *testing.T) {
		record := createTestRecord(t)

		assert.Equal(t, StatusPending, record.Status)
		assert.Equal(t, 0, record.RetryCount)
		assert.Equal(t, DefaultMaxRetries, record.MaxRetries)
		assert.False(t, record.IsTerminal())
		assert.Nil(t, record.ExecuteTime)
	})

	t.Run("keeps the operator who parked the operation", func(t *testing.T) {
		record, err := NewCompensationRecord(1001, 2001, 10, "ORD-001", OperationRollback, 501)
		require.NoError(t, err)

		assert.Equal(t, int64(501), record.OperatorID)
	})

	t.Run("rejects invalid inputs", func(t *testing.T) {
		cases := []struct {
			name      string
			productID int64
			skuID     int64
			quantity  int64
			orderNo   string
			opType    OperationType
		}{
			{"zero product", 0, 1, 10, "ORD-001", OperationDeduct},
			{"negative sku", 1, -1, 10, "ORD-001", OperationDeduct},
			{"zero quantity", 1, 1, 0, "ORD-001", OperationDeduct},
			{"empty order no", 1, 1, 10, "", OperationDeduct},
			{"bad operation", 1, 1, 10, "ORD-001", OperationType("TRANSFER")},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				record, err := NewCompensationRecord(tc.productID, tc.skuID, tc.quantity, tc.orderNo, tc.opType, 0)
				require.Error(t, err)
				assert.Nil(t, record)
				assert.True(t, errors.Is(err, shared.ErrInvalidArgument))
			})
		}
	})
}

func TestCompensationRecord_BeginAttempt(t *testing.T) {
	t.Run("consumes one attempt", func(t *testing.T) {
		record := createTestRecord(t)

		require.NoError(t, record.BeginAttempt())

		assert.Equal(t, 1, record.RetryCount)
		assert.Equal(t, StatusPending, record.Status)
	})

	t.Run("succeeded record is a no-op", func(t *testing.T) {
		record := createTestRecord(t)
		require.NoError(t, record.BeginAttempt())
		record.MarkSuccess()

		err := record.BeginAttempt()

		require.NoError(t, err)
		assert.Equal(t, 1, record.RetryCount, "no further attempt consumed")
		assert.Equal(t, StatusSuccess, record.Status)
	})

	t.Run("cancelled record cannot be executed", func(t *testing.T) {
		record := createTestRecord(t)
		require.NoError(t, record.Cancel(""))

		err := record.BeginAttempt()

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
	})

	t.Run("exhausted record flips to failed", func(t *testing.T) {
		record := createTestRecord(t)
		for i := 0; i < DefaultMaxRetries; i++ {
			require.NoError(t, record.BeginAttempt())
			record.MarkAttemptFailed("stock service unavailable")
		}
		assert.Equal(t, StatusFailed, record.Status)

		err := record.BeginAttempt()

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
		assert.Equal(t, DefaultMaxRetries, record.RetryCount)
	})
}

func TestCompensationRecord_MarkAttemptFailed(t *testing.T) {
	record := createTestRecord(t)

	require.NoError(t, record.BeginAttempt())
	record.MarkAttemptFailed("timeout")

	assert.Equal(t, StatusPending, record.Status, "stays pending while attempts remain")
	assert.Equal(t, "timeout", record.FailureReason)

	require.NoError(t, record.BeginAttempt())
	record.MarkAttemptFailed("timeout")
	require.NoError(t, record.BeginAttempt())
	record.MarkAttemptFailed("timeout")

	assert.Equal(t, StatusFailed, record.Status, "last attempt failure is terminal")
	assert.True(t, record.IsTerminal())
}

func TestCompensationRecord_MarkSuccess(t *testing.T) {
	record := createTestRecord(t)
	require.NoError(t, record.BeginAttempt())

	record.MarkSuccess()

	assert.Equal(t, StatusSuccess, record.Status)
	require.NotNil(t, record.ExecuteTime)
	assert.True(t, record.IsTerminal())
}

func TestCompensationRecord_Cancel(t *testing.T) {
	t.Run("cancels pending record with the given reason", func(t *testing.T) {
		record := createTestRecord(t)

		require.NoError(t, record.Cancel("order refunded through support"))

		assert.Equal(t, StatusCancelled, record.Status)
		assert.Equal(t, "order refunded through support", record.FailureReason)
	})

	t.Run("missing reason falls back to the default", func(t *testing.T) {
		record := createTestRecord(t)

		require.NoError(t, record.Cancel(""))

		assert.Equal(t, StatusCancelled, record.Status)
		assert.Equal(t, CancelReasonDefault, record.FailureReason)
	})

	t.Run("cancel is idempotent and keeps the first reason", func(t *testing.T) {
		record := createTestRecord(t)
		require.NoError(t, record.Cancel("duplicate order"))
		version := record.GetVersion()

		require.NoError(t, record.Cancel("second thoughts"))

		assert.Equal(t, version, record.GetVersion())
		assert.Equal(t, "duplicate order", record.FailureReason)
	})

	t.Run("successful record cannot be cancelled", func(t *testing.T) {
		record := createTestRecord(t)
		require.NoError(t, record.BeginAttempt())
		record.MarkSuccess()

		err := record.Cancel("")

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
		assert.Equal(t, StatusSuccess, record.Status)
	})
}
