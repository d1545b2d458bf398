package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/pagination"
)

// VendorOrderUpdate carries the mutable fields of a vendor order status write.
type VendorOrderUpdate struct {
	Status            enums.OrderStatus
	TrackingNumber    *string
	EstimatedDelivery *time.Time
}

// Repository manages persistence for orders and their vendor orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindVendorOrder(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.VendorOrder, string, error)
	UpdateVendorOrderStatus(ctx context.Context, id uuid.UUID, expectedVersion int, update VendorOrderUpdate) (bool, error)
	ChildStatuses(ctx context.Context, orderID uuid.UUID) ([]enums.OrderStatus, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error
	ConfirmPending(ctx context.Context, id uuid.UUID, paymentRef string) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, cancelledBy uuid.UUID, reason string, at time.Time) (bool, error)
	CancelVendorOrders(ctx context.Context, orderID uuid.UUID) (int64, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create persists the order aggregate, cascading items and vendor orders.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("VendorOrders").
		Preload("VendorOrders.Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindVendorOrder(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error) {
	var vendorOrder models.VendorOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&vendorOrder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found")
		}
		return nil, err
	}
	return &vendorOrder, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := r.db.WithContext(ctx).
		Preload("VendorOrders").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}

	page, more := pagination.TrimPage(rows, params.Limit)
	next := ""
	if more && len(page) > 0 {
		last := page[len(page)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, next, nil
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.VendorOrder, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.VendorOrder
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}

	page, more := pagination.TrimPage(rows, params.Limit)
	next := ""
	if more && len(page) > 0 {
		last := page[len(page)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, next, nil
}

// UpdateVendorOrderStatus applies a guarded status write. The version match
// makes the write optimistic: zero rows affected means another request won
// the race and the caller must re-read.
func (r *repository) UpdateVendorOrderStatus(ctx context.Context, id uuid.UUID, expectedVersion int, update VendorOrderUpdate) (bool, error) {
	values := map[string]any{
		"status":     update.Status,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	}
	if update.TrackingNumber != nil {
		values["tracking_number"] = *update.TrackingNumber
	}
	if update.EstimatedDelivery != nil {
		values["estimated_delivery"] = *update.EstimatedDelivery
	}

	result := r.db.WithContext(ctx).
		Model(&models.VendorOrder{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ChildStatuses(ctx context.Context, orderID uuid.UUID) ([]enums.OrderStatus, error) {
	var statuses []enums.OrderStatus
	err := r.db.WithContext(ctx).
		Model(&models.VendorOrder{}).
		Where("order_id = ?", orderID).
		Pluck("status", &statuses).Error
	return statuses, err
}

func (r *repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

// ConfirmPending flips a freshly paid order from pending to confirmed and
// records the payment reference. The status guard keeps replays harmless.
func (r *repository) ConfirmPending(ctx context.Context, id uuid.UUID, paymentRef string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":         enums.OrderStatusConfirmed,
			"payment_status": enums.PaymentStatusPaid,
			"payment_ref":    paymentRef,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.VendorOrder{}).
		Where("order_id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":     enums.OrderStatusConfirmed,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkCancelled cancels the order only while its status still permits it.
func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID, cancelledBy uuid.UUID, reason string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, []enums.OrderStatus{
			enums.OrderStatusPending,
			enums.OrderStatusConfirmed,
			enums.OrderStatusProcessing,
		}).
		Updates(map[string]any{
			"status":        enums.OrderStatusCancelled,
			"cancel_reason": reason,
			"cancelled_by":  cancelledBy,
			"cancelled_at":  at,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CancelVendorOrders(ctx context.Context, orderID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.VendorOrder{}).
		Where("order_id = ? AND status <> ?", orderID, enums.OrderStatusCancelled).
		Updates(map[string]any{
			"status":     enums.OrderStatusCancelled,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) SetPaymentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{"payment_status": status, "updated_at": time.Now().UTC()}).Error
}
