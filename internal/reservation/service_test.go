package reservation

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vendorhub/vendorhub-backend/internal/inventory"
	"github.com/vendorhub/vendorhub-backend/pkg/config"
	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubEmitter struct {
	events []outbox.DomainEvent
}

func (s *stubEmitter) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func setupReservationTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:reservation_%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
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
);
CREATE TABLE IF NOT EXISTS reservations (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  expires_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_reservations_customer_active ON reservations(customer_id) WHERE status = 'active';
CREATE TABLE IF NOT EXISTS reservation_holds (
  id TEXT PRIMARY KEY,
  reservation_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  qty INTEGER NOT NULL
);`
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, ttl time.Duration) (Service, Repository, inventory.Repository, *stubEmitter) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "reservation-test", Output: io.Discard})

	invRepo := inventory.NewRepository(db)
	invSvc, err := inventory.NewService(invRepo, logg)
	require.NoError(t, err)

	repo := NewRepository(db)
	emitter := &stubEmitter{}
	svc, err := NewService(gormTxRunner{db: db}, repo, invSvc, emitter, config.ReservationConfig{
		TTL:        ttl,
		SweepBatch: 50,
	}, logg)
	require.NoError(t, err)
	return svc, repo, invRepo, emitter
}

func seedStock(t *testing.T, db *gorm.DB, total int) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	require.NoError(t, db.Create(&models.InventoryRecord{
		ProductID:       productID,
		TotalQty:        total,
		TrackingEnabled: true,
	}).Error)
	return productID
}

func TestCreateReservationTakesHolds(t *testing.T) {
	db := setupReservationTestDB(t)
	svc, _, invRepo, _ := newTestService(t, db, 30*time.Minute)
	ctx := context.Background()

	productID := seedStock(t, db, 10)
	customerID := uuid.New()

	created, err := svc.Create(ctx, customerID, []inventory.StockRequest{{ProductID: productID, Qty: 4}})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusActive, created.Status)
	require.Len(t, created.Holds, 1)

	record, err := invRepo.Find(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, 4, record.ReservedQty)
}

func TestCreateReservationAllOrNothing(t *testing.T) {
	db := setupReservationTestDB(t)
	svc, _, invRepo, _ := newTestService(t, db, 30*time.Minute)
	ctx := context.Background()

	plenty := seedStock(t, db, 10)
	scarce := seedStock(t, db, 1)

	_, err := svc.Create(ctx, uuid.New(), []inventory.StockRequest{
		{ProductID: plenty, Qty: 2},
		{ProductID: scarce, Qty: 5},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	// The failed reservation must not leave a partial hold behind.
	record, ferr := invRepo.Find(ctx, plenty)
	require.NoError(t, ferr)
	require.Equal(t, 0, record.ReservedQty)
}

func TestCreateReservationRejectsSecondActive(t *testing.T) {
	db := setupReservationTestDB(t)
	svc, _, _, _ := newTestService(t, db, 30*time.Minute)
	ctx := context.Background()

	productID := seedStock(t, db, 10)
	customerID := uuid.New()

	_, err := svc.Create(ctx, customerID, []inventory.StockRequest{{ProductID: productID, Qty: 1}})
	require.NoError(t, err)

	_, err = svc.Create(ctx, customerID, []inventory.StockRequest{{ProductID: productID, Qty: 1}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestReleaseIsIdempotent(t *testing.T) {
	db := setupReservationTestDB(t)
	svc, _, invRepo, _ := newTestService(t, db, 30*time.Minute)
	ctx := context.Background()

	productID := seedStock(t, db, 10)
	created, err := svc.Create(ctx, uuid.New(), []inventory.StockRequest{{ProductID: productID, Qty: 3}})
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, created.ID))
	require.NoError(t, svc.Release(ctx, created.ID))

	record, ferr := invRepo.Find(ctx, productID)
	require.NoError(t, ferr)
	// Double release must not return more stock than was held.
	require.Equal(t, 0, record.ReservedQty)
	require.Equal(t, 10, record.AvailableQty())
}

func TestReleaseCommittedIsConflict(t *testing.T) {
	db := setupReservationTestDB(t)
	svc, _, _, _ := newTestService(t, db, 30*time.Minute)
	ctx := context.Background()

	productID := seedStock(t, db, 10)
	created, err := svc.Create(ctx, uuid.New(), []inventory.StockRequest{{ProductID: productID, Qty: 3}})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, cerr := svc.CommitTx(ctx, tx, created.ID)
		return cerr
	})
	require.NoError(t, err)

	err = svc.Release(ctx, created.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCommitConvertsHolds(t *testing.T) {
	db := setupReservationTestDB(t)
	svc, repo, invRepo, _ := newTestService(t, db, 30*time.Minute)
	ctx := context.Background()

	productID := seedStock(t, db, 10)
	created, err := svc.Create(ctx, uuid.New(), []inventory.StockRequest{{ProductID: productID, Qty: 4}})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, cerr := svc.CommitTx(ctx, tx, created.ID)
		return cerr
	})
	require.NoError(t, err)

	row, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusCommitted, row.Status)

	record, ferr := invRepo.Find(ctx, productID)
	require.NoError(t, ferr)
	require.Equal(t, 0, record.ReservedQty)
	require.Equal(t, 4, record.CommittedQty)
}

func TestCommitExpiredReservationFails(t *testing.T) {
	db := setupReservationTestDB(t)
	svc, _, _, _ := newTestService(t, db, -time.Minute) // already lapsed at creation
	ctx := context.Background()

	productID := seedStock(t, db, 10)
	repo := NewRepository(db)
	row := &models.Reservation{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		Status:     enums.ReservationStatusActive,
		ExpiresAt:  time.Now().Add(-time.Minute),
		Holds:      []models.ReservationHold{{ID: uuid.New(), ProductID: productID, Qty: 2}},
	}
	require.NoError(t, repo.Create(ctx, row))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, cerr := svc.CommitTx(ctx, tx, row.ID)
		return cerr
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestSweepExpiredReleasesHoldsAndEmits(t *testing.T) {
	db := setupReservationTestDB(t)
	svc, repo, invRepo, emitter := newTestService(t, db, 30*time.Minute)
	ctx := context.Background()

	productID := seedStock(t, db, 10)
	row := &models.Reservation{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		Status:     enums.ReservationStatusActive,
		ExpiresAt:  time.Now().Add(-time.Hour),
		Holds:      []models.ReservationHold{{ID: uuid.New(), ProductID: productID, Qty: 6}},
	}
	require.NoError(t, repo.Create(ctx, row))
	_, err := invRepo.Reserve(ctx, productID, 6)
	require.NoError(t, err)

	swept, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	stored, err := repo.FindByID(ctx, row.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusExpired, stored.Status)

	record, ferr := invRepo.Find(ctx, productID)
	require.NoError(t, ferr)
	require.Equal(t, 0, record.ReservedQty)

	require.Len(t, emitter.events, 1)
	require.Equal(t, enums.EventReservationExpired, emitter.events[0].EventType)

	// Re-running the sweep finds nothing new.
	swept, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, swept)
}

func TestCreateReservationUniqueActivePerCustomer(t *testing.T) {
	db := setupReservationTestDB(t)
	_, repo, _, _ := newTestService(t, db, 30*time.Minute)
	ctx := context.Background()

	customerID := uuid.New()

	// Two creates that both read "no active reservation" end up racing at the
	// insert; the partial unique index lets exactly one row through.
	first := &models.Reservation{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     enums.ReservationStatusActive,
		ExpiresAt:  time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, repo.Create(ctx, first))

	second := &models.Reservation{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     enums.ReservationStatusActive,
		ExpiresAt:  time.Now().Add(30 * time.Minute),
	}
	err := repo.Create(ctx, second)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	// A non-active row does not block a fresh reservation.
	moved, err := repo.TransitionStatus(ctx, first.ID, enums.ReservationStatusActive, enums.ReservationStatusReleased)
	require.NoError(t, err)
	require.True(t, moved)
	require.NoError(t, repo.Create(ctx, second))
}
