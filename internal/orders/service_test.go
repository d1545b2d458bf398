package orders

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox"
	"github.com/vendorhub/vendorhub-backend/pkg/pagination"
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

func (s *stubEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:orders_%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  currency TEXT NOT NULL DEFAULT 'USD',
  shipping_address TEXT,
  subtotal_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL DEFAULT 0,
  payment_ref TEXT,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  cancel_reason TEXT,
  cancelled_by TEXT,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS vendor_orders (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  subtotal_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL DEFAULT 0,
  tracking_number TEXT,
  estimated_delivery DATETIME,
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  vendor_order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  name TEXT NOT NULL,
  sku TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  created_at DATETIME
);`
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (Service, Repository, *stubEmitter) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	repo := NewRepository(db)
	emitter := &stubEmitter{}
	svc, err := NewService(gormTxRunner{db: db}, repo, emitter, logg)
	require.NoError(t, err)
	return svc, repo, emitter
}

func seedOrder(t *testing.T, repo Repository, customerID uuid.UUID, vendorStatuses ...enums.OrderStatus) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            uuid.New(),
		CustomerID:    customerID,
		Status:        DeriveParentStatus(vendorStatuses),
		Currency:      enums.CurrencyUSD,
		SubtotalCents: 1000 * len(vendorStatuses),
		TotalCents:    1000 * len(vendorStatuses),
	}
	for _, status := range vendorStatuses {
		vendorOrderID := uuid.New()
		order.VendorOrders = append(order.VendorOrders, models.VendorOrder{
			ID:            vendorOrderID,
			OrderID:       order.ID,
			VendorID:      uuid.New(),
			Status:        status,
			SubtotalCents: 1000,
			TotalCents:    1000,
			Version:       1,
			Items: []models.OrderItem{{
				ID:             uuid.New(),
				OrderID:        order.ID,
				VendorOrderID:  vendorOrderID,
				ProductID:      uuid.New(),
				VendorID:       uuid.New(),
				Name:           "Widget",
				SKU:            "SKU-1",
				Qty:            1,
				UnitPriceCents: 1000,
				TotalCents:     1000,
			}},
		})
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestUpdateVendorOrderStatusAdvances(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, repo, emitter := newTestService(t, db)
	ctx := context.Background()

	order := seedOrder(t, repo, uuid.New(), enums.OrderStatusConfirmed, enums.OrderStatusConfirmed)
	child := order.VendorOrders[0]

	updated, err := svc.UpdateVendorOrderStatus(ctx, StatusUpdateInput{
		VendorOrderID: child.ID,
		VendorID:      child.VendorID,
		ToStatus:      enums.OrderStatusProcessing,
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, updated.Status)
	require.Equal(t, 2, updated.Version)

	// The sibling is still confirmed, so the parent stays at confirmed.
	parent, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, parent.Status)

	require.Len(t, emitter.events, 1)
	require.Equal(t, enums.EventOrderStatusChanged, emitter.events[0].EventType)
	require.Equal(t, child.ID, emitter.events[0].AggregateID)
}

func TestUpdateVendorOrderStatusAdvancesParent(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, repo, _ := newTestService(t, db)
	ctx := context.Background()

	order := seedOrder(t, repo, uuid.New(), enums.OrderStatusConfirmed, enums.OrderStatusProcessing)
	child := order.VendorOrders[0]

	_, err := svc.UpdateVendorOrderStatus(ctx, StatusUpdateInput{
		VendorOrderID: child.ID,
		VendorID:      child.VendorID,
		ToStatus:      enums.OrderStatusProcessing,
	})
	require.NoError(t, err)

	parent, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, parent.Status)
}

func TestUpdateVendorOrderStatusStaleVersion(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, repo, _ := newTestService(t, db)
	ctx := context.Background()

	order := seedOrder(t, repo, uuid.New(), enums.OrderStatusConfirmed)
	child := order.VendorOrders[0]

	_, err := svc.UpdateVendorOrderStatus(ctx, StatusUpdateInput{
		VendorOrderID:   child.ID,
		VendorID:        child.VendorID,
		ToStatus:        enums.OrderStatusProcessing,
		ExpectedVersion: 7,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestUpdateVendorOrderStatusRules(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, repo, _ := newTestService(t, db)
	ctx := context.Background()

	order := seedOrder(t, repo, uuid.New(), enums.OrderStatusProcessing)
	child := order.VendorOrders[0]

	// Shipped needs a tracking number.
	_, err := svc.UpdateVendorOrderStatus(ctx, StatusUpdateInput{
		VendorOrderID: child.ID,
		VendorID:      child.VendorID,
		ToStatus:      enums.OrderStatusShipped,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	// Another vendor cannot touch the row.
	_, err = svc.UpdateVendorOrderStatus(ctx, StatusUpdateInput{
		VendorOrderID: child.ID,
		VendorID:      uuid.New(),
		ToStatus:      enums.OrderStatusShipped,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	// No skipping steps.
	_, err = svc.UpdateVendorOrderStatus(ctx, StatusUpdateInput{
		VendorOrderID: child.ID,
		VendorID:      child.VendorID,
		ToStatus:      enums.OrderStatusDelivered,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	tracking := "1Z999AA10123456784"
	eta := time.Now().Add(72 * time.Hour).UTC()
	updated, err := svc.UpdateVendorOrderStatus(ctx, StatusUpdateInput{
		VendorOrderID:     child.ID,
		VendorID:          child.VendorID,
		ToStatus:          enums.OrderStatusShipped,
		TrackingNumber:    &tracking,
		EstimatedDelivery: &eta,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.TrackingNumber)
	require.Equal(t, tracking, *updated.TrackingNumber)
}

func TestConfirmPending(t *testing.T) {
	db := setupOrdersTestDB(t)
	_, repo, _ := newTestService(t, db)
	ctx := context.Background()

	order := seedOrder(t, repo, uuid.New(), enums.OrderStatusPending, enums.OrderStatusPending)

	ok, err := repo.ConfirmPending(ctx, order.ID, "sq-payment-123")
	require.NoError(t, err)
	require.True(t, ok)

	confirmed, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, confirmed.Status)
	require.Equal(t, enums.PaymentStatusPaid, confirmed.PaymentStatus)
	require.NotNil(t, confirmed.PaymentRef)
	for _, child := range confirmed.VendorOrders {
		require.Equal(t, enums.OrderStatusConfirmed, child.Status)
	}

	// Replays see the guard and report nothing to do.
	ok, err = repo.ConfirmPending(ctx, order.ID, "sq-payment-123")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetCustomerOrderOwnership(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, repo, _ := newTestService(t, db)
	ctx := context.Background()

	customerID := uuid.New()
	order := seedOrder(t, repo, customerID, enums.OrderStatusPending)

	found, err := svc.GetCustomerOrder(ctx, customerID, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, found.ID)
	require.Len(t, found.VendorOrders, 1)

	_, err = svc.GetCustomerOrder(ctx, uuid.New(), order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListCustomerOrders(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, repo, _ := newTestService(t, db)
	ctx := context.Background()

	customerID := uuid.New()
	for i := 0; i < 3; i++ {
		seedOrder(t, repo, customerID, enums.OrderStatusPending)
	}
	seedOrder(t, repo, uuid.New(), enums.OrderStatusPending)

	rows, next, err := svc.ListCustomerOrders(ctx, customerID, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Empty(t, next)
}

func TestUpdateVendorOrderStatusCannotCancel(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc, repo, emitter := newTestService(t, db)
	ctx := context.Background()

	order := seedOrder(t, repo, uuid.New(), enums.OrderStatusConfirmed)
	child := order.VendorOrders[0]

	_, err := svc.UpdateVendorOrderStatus(ctx, StatusUpdateInput{
		VendorOrderID: child.ID,
		VendorID:      child.VendorID,
		ToStatus:      enums.OrderStatusCancelled,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)

	// Neither the child nor the parent moved, and nothing was emitted.
	row, err := repo.FindVendorOrder(ctx, child.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, row.Status)
	require.Equal(t, 1, row.Version)

	parent, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, parent.Status)
	require.Empty(t, emitter.events)
}

func TestConcurrentVendorOrderStatusUpdatesOneWins(t *testing.T) {
	db := setupOrdersTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps sqlite happy under concurrent writers; the
	// version guard still decides the winner.
	sqlDB.SetMaxOpenConns(1)

	svc, repo, _ := newTestService(t, db)
	ctx := context.Background()

	order := seedOrder(t, repo, uuid.New(), enums.OrderStatusConfirmed)
	child := order.VendorOrders[0]

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateVendorOrderStatus(ctx, StatusUpdateInput{
				VendorOrderID:   child.ID,
				VendorID:        child.VendorID,
				ToStatus:        enums.OrderStatusProcessing,
				ExpectedVersion: 1,
			})
			results <- err
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
		// The loser fails the version guard or re-reads the already-updated
		// row, depending on interleaving. Both are conflicts.
		conflict := pkgerrors.IsCode(err, pkgerrors.CodeConflict) ||
			pkgerrors.IsCode(err, pkgerrors.CodeStateConflict)
		require.True(t, conflict, "got %v", err)
		losses++
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)

	row, err := repo.FindVendorOrder(ctx, child.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, row.Status)
	require.Equal(t, 2, row.Version)
}
