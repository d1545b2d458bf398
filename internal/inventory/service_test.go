package inventory

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
)

func setupInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:inventory_%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS inventory_records (
  product_id TEXT PRIMARY KEY,
  total_qty INTEGER NOT NULL DEFAULT 0,
  reserved_qty INTEGER NOT NULL DEFAULT 0,
  committed_qty INTEGER NOT NULL DEFAULT 0,
  tracking_enabled INTEGER NOT NULL DEFAULT 1,
  low_stock_threshold INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard})
}

func seedRecord(t *testing.T, db *gorm.DB, total, reserved, committed int) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	record := &models.InventoryRecord{
		ProductID:       productID,
		TotalQty:        total,
		ReservedQty:     reserved,
		CommittedQty:    committed,
		TrackingEnabled: true,
	}
	require.NoError(t, db.Create(record).Error)
	return productID
}

func TestReserveSucceedsWithinAvailable(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	productID := seedRecord(t, db, 10, 2, 3) // 5 available

	err = svc.Reserve(ctx, db, []StockRequest{{ProductID: productID, Qty: 5}})
	require.NoError(t, err)

	record, err := repo.Find(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, 7, record.ReservedQty)
	require.Equal(t, 0, record.AvailableQty())
}

func TestReserveRejectsInsufficientStock(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	productID := seedRecord(t, db, 10, 4, 4) // 2 available

	err = svc.Reserve(ctx, db, []StockRequest{{ProductID: productID, Qty: 3}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	record, ferr := repo.Find(ctx, productID)
	require.NoError(t, ferr)
	require.Equal(t, 4, record.ReservedQty)
}

func TestReserveSkipsUntrackedProducts(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	// No ledger row at all: product is not stock-tracked.
	err = svc.Reserve(ctx, db, []StockRequest{{ProductID: uuid.New(), Qty: 100}})
	require.NoError(t, err)

	// Row exists but tracking disabled.
	productID := uuid.New()
	require.NoError(t, db.Create(&models.InventoryRecord{
		ProductID: productID, TotalQty: 1, TrackingEnabled: false,
	}).Error)
	err = svc.Reserve(ctx, db, []StockRequest{{ProductID: productID, Qty: 100}})
	require.NoError(t, err)
}

func TestCommitMovesReservedToCommitted(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	productID := seedRecord(t, db, 10, 4, 0)

	err = svc.Commit(ctx, db, []StockRequest{{ProductID: productID, Qty: 4}})
	require.NoError(t, err)

	record, ferr := repo.Find(ctx, productID)
	require.NoError(t, ferr)
	require.Equal(t, 0, record.ReservedQty)
	require.Equal(t, 4, record.CommittedQty)
	require.Equal(t, 10, record.TotalQty)
}

func TestCommitRejectsMoreThanReserved(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)

	productID := seedRecord(t, db, 10, 2, 0)
	err = svc.Commit(context.Background(), db, []StockRequest{{ProductID: productID, Qty: 3}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRestoreReturnsCommittedToAvailable(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	productID := seedRecord(t, db, 10, 0, 6)

	err = svc.Restore(ctx, db, []StockRequest{{ProductID: productID, Qty: 6}})
	require.NoError(t, err)

	record, ferr := repo.Find(ctx, productID)
	require.NoError(t, ferr)
	require.Equal(t, 0, record.CommittedQty)
	require.Equal(t, 10, record.AvailableQty())
}

func TestStockConservationAcrossLifecycle(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	productID := seedRecord(t, db, 20, 0, 0)
	reqs := []StockRequest{{ProductID: productID, Qty: 8}}

	require.NoError(t, svc.Reserve(ctx, db, reqs))
	require.NoError(t, svc.Commit(ctx, db, reqs))
	require.NoError(t, svc.Restore(ctx, db, reqs))

	record, ferr := repo.Find(ctx, productID)
	require.NoError(t, ferr)
	// Reserved + committed + available must always equal total.
	require.Equal(t, record.TotalQty, record.ReservedQty+record.CommittedQty+record.AvailableQty())
	require.Equal(t, 20, record.AvailableQty())
}

func TestSequentialReservesDepleteExactly(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	productID := seedRecord(t, db, 5, 0, 0)

	granted := 0
	for i := 0; i < 8; i++ {
		err := svc.Reserve(ctx, db, []StockRequest{{ProductID: productID, Qty: 1}})
		if err == nil {
			granted++
			continue
		}
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	}
	require.Equal(t, 5, granted)

	record, ferr := repo.Find(ctx, productID)
	require.NoError(t, ferr)
	require.Equal(t, 5, record.ReservedQty)
	require.Equal(t, 0, record.AvailableQty())
}

func TestSetStockPreservesHolds(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	productID := seedRecord(t, db, 10, 3, 2)

	require.NoError(t, svc.SetStock(ctx, productID, 8, true, 2))
	record, ferr := repo.Find(ctx, productID)
	require.NoError(t, ferr)
	require.Equal(t, 8, record.TotalQty)
	require.Equal(t, 3, record.ReservedQty)
	require.Equal(t, 2, record.CommittedQty)

	err = svc.SetStock(ctx, productID, 4, true, 2)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestAdjustTotalGuardsHolds(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	productID := seedRecord(t, db, 10, 4, 3)

	ok, err := repo.AdjustTotal(ctx, productID, -3)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.AdjustTotal(ctx, productID, -1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConcurrentReservesLastUnitOneWins(t *testing.T) {
	db := setupInventoryTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps sqlite happy under concurrent writers; the
	// conditional UPDATE still decides the winner.
	sqlDB.SetMaxOpenConns(1)

	repo := NewRepository(db)
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	productID := seedRecord(t, db, 1, 0, 0) // exactly one unit left

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Reserve(ctx, db, []StockRequest{{ProductID: productID, Qty: 1}})
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
		losses++
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)

	record, err := repo.Find(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, 1, record.ReservedQty)
	require.Equal(t, 0, record.AvailableQty())
}
