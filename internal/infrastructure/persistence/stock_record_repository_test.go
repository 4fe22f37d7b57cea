package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/mallstock/backend/internal/domain/shared"
	"github.com/mallstock/backend/internal/domain/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockStockRecordRepository creates a GormStockRecordRepository with a mocked SQL connection
func newMockStockRecordRepository(t *testing.T) (*GormStockRecordRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormStockRecordRepository(gormDB), mock, mockDB
}

func stockRecordRows(id uuid.UUID, productID, skuID, quantity, warnThreshold, version int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "product_id", "sku_id", "quantity", "warn_threshold", "version",
	}).AddRow(id, productID, skuID, quantity, warnThreshold, version)
}

func TestGormStockRecordRepository_FindByID(t *testing.T) {
	t.Run("finds existing record", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		recordID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "stock_records" WHERE id = \$1`).
			WithArgs(recordID, 1).
			WillReturnRows(stockRecordRows(recordID, 1001, 2001, 100, 10, 1))

		record, err := repo.FindByID(context.Background(), recordID)

		assert.NoError(t, err)
		assert.NotNil(t, record)
		assert.Equal(t, recordID, record.ID)
		assert.Equal(t, int64(1001), record.ProductID)
		assert.Equal(t, int64(100), record.Quantity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing record", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		recordID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "stock_records" WHERE id = \$1`).
			WithArgs(recordID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		record, err := repo.FindByID(context.Background(), recordID)

		assert.Error(t, err)
		assert.Nil(t, record)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStockRecordRepository_FindByProductAndSKU(t *testing.T) {
	t.Run("finds record by product and SKU", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		recordID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "stock_records" WHERE product_id = \$1 AND sku_id = \$2`).
			WithArgs(int64(1001), int64(2001), 1).
			WillReturnRows(stockRecordRows(recordID, 1001, 2001, 50, 0, 3))

		record, err := repo.FindByProductAndSKU(context.Background(), 1001, 2001)

		assert.NoError(t, err)
		assert.Equal(t, int64(2001), record.SkuID)
		assert.Equal(t, int64(3), record.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("finds product-level record with SKU zero", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		recordID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "stock_records" WHERE product_id = \$1 AND sku_id = \$2`).
			WithArgs(int64(1001), int64(0), 1).
			WillReturnRows(stockRecordRows(recordID, 1001, 0, 200, 0, 1))

		record, err := repo.FindByProductAndSKU(context.Background(), 1001, 0)

		assert.NoError(t, err)
		assert.Equal(t, int64(0), record.SkuID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing pair", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "stock_records" WHERE product_id = \$1 AND sku_id = \$2`).
			WithArgs(int64(9999), int64(0), 1).
			WillReturnError(gorm.ErrRecordNotFound)

		record, err := repo.FindByProductAndSKU(context.Background(), 9999, 0)

		assert.Error(t, err)
		assert.Nil(t, record)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStockRecordRepository_GetOrCreate(t *testing.T) {
	t.Run("returns existing record without inserting", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		recordID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "stock_records" WHERE product_id = \$1 AND sku_id = \$2`).
			WithArgs(int64(1001), int64(2001), 1).
			WillReturnRows(stockRecordRows(recordID, 1001, 2001, 75, 0, 2))

		record, err := repo.GetOrCreate(context.Background(), 1001, 2001)

		assert.NoError(t, err)
		assert.Equal(t, recordID, record.ID)
		assert.Equal(t, int64(75), record.Quantity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("creates zero-quantity record when missing", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "stock_records" WHERE product_id = \$1 AND sku_id = \$2`).
			WithArgs(int64(1001), int64(2001), 1).
			WillReturnError(gorm.ErrRecordNotFound)

		mock.ExpectExec(`INSERT INTO "stock_records" .* ON CONFLICT \("product_id","sku_id"\) DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		record, err := repo.GetOrCreate(context.Background(), 1001, 2001)

		assert.NoError(t, err)
		assert.Equal(t, int64(0), record.Quantity)
		assert.Equal(t, int64(1), record.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fetches the winner after losing the insert race", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		winnerID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "stock_records" WHERE product_id = \$1 AND sku_id = \$2`).
			WithArgs(int64(1001), int64(2001), 1).
			WillReturnError(gorm.ErrRecordNotFound)

		mock.ExpectExec(`INSERT INTO "stock_records" .* ON CONFLICT \("product_id","sku_id"\) DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mock.ExpectQuery(`SELECT \* FROM "stock_records" WHERE product_id = \$1 AND sku_id = \$2`).
			WithArgs(int64(1001), int64(2001), 1).
			WillReturnRows(stockRecordRows(winnerID, 1001, 2001, 30, 0, 1))

		record, err := repo.GetOrCreate(context.Background(), 1001, 2001)

		assert.NoError(t, err)
		assert.Equal(t, winnerID, record.ID)
		assert.Equal(t, int64(30), record.Quantity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStockRecordRepository_SaveWithLock(t *testing.T) {
	t.Run("updates row matching the previous version", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		record, err := stock.NewStockRecord(1001, 2001, 100)
		require.NoError(t, err)
		require.NoError(t, record.Deduct(10, "ORD-001", 1))
		require.Equal(t, int64(2), record.Version)

		mock.ExpectExec(`UPDATE "stock_records" SET .* WHERE \(id = \$\d+ AND version = \$\d+\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.SaveWithLock(context.Background(), record)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports conflict when no row matches", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		record, err := stock.NewStockRecord(1001, 2001, 100)
		require.NoError(t, err)
		require.NoError(t, record.Deduct(10, "ORD-001", 1))

		mock.ExpectExec(`UPDATE "stock_records" SET .* WHERE \(id = \$\d+ AND version = \$\d+\)`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = repo.SaveWithLock(context.Background(), record)

		assert.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStockRecordRepository_FindBelowThreshold(t *testing.T) {
	t.Run("lists records at or below their threshold", func(t *testing.T) {
		repo, mock, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT count\(\*\) FROM "stock_records" WHERE warn_threshold > 0 AND quantity <= warn_threshold`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		mock.ExpectQuery(`SELECT \* FROM "stock_records" WHERE warn_threshold > 0 AND quantity <= warn_threshold`).
			WillReturnRows(stockRecordRows(uuid.New(), 1001, 2001, 5, 10, 4))

		records, total, err := repo.FindBelowThreshold(context.Background(), shared.DefaultFilter())

		assert.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Len(t, records, 1)
		assert.Equal(t, int64(5), records[0].Quantity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStockRecordRepository_InterfaceCompliance(t *testing.T) {
	t.Run("implements StockRecordRepository interface", func(t *testing.T) {
		repo, _, mockDB := newMockStockRecordRepository(t)
		defer mockDB.Close()

		var _ stock.StockRecordRepository = repo
	})
}
