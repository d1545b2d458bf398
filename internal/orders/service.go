package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox/payloads"
	"github.com/vendorhub/vendorhub-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StatusUpdateInput is a vendor's request to move a vendor order forward.
type StatusUpdateInput struct {
	VendorOrderID     uuid.UUID
	VendorID          uuid.UUID
	ToStatus          enums.OrderStatus
	TrackingNumber    *string
	EstimatedDelivery *time.Time
	ExpectedVersion   int
}

// Service exposes order reads and the vendor order status lifecycle.
type Service interface {
	GetCustomerOrder(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.VendorOrder, string, error)
	UpdateVendorOrderStatus(ctx context.Context, input StatusUpdateInput) (*models.VendorOrder, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	outbox outboxEmitter
	logg   *logger.Logger
}

// NewService wires the orders service.
func NewService(tx txRunner, repo Repository, emitter outboxEmitter, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, repo: repo, outbox: emitter, logg: logg}, nil
}

func (s *service) GetCustomerOrder(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error) {
	if customerID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id and order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// Hide other customers' orders behind the same not-found response.
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	if customerID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	return s.repo.ListByCustomer(ctx, customerID, params)
}

func (s *service) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.VendorOrder, string, error) {
	if vendorID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	return s.repo.ListByVendor(ctx, vendorID, params)
}

// UpdateVendorOrderStatus moves one vendor order along the lifecycle and
// recomputes the parent order's status from all children in the same
// transaction. A stale version loses the optimistic check and returns a
// conflict so the vendor can retry on fresh state.
func (s *service) UpdateVendorOrderStatus(ctx context.Context, input StatusUpdateInput) (*models.VendorOrder, error) {
	if input.VendorOrderID == uuid.Nil || input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor order id and vendor id required")
	}
	if input.ToStatus == enums.OrderStatusShipped && trimmed(input.TrackingNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number required to mark shipped")
	}
	// Cancellation restores stock and refunds payment, which the cancellation
	// engine owns. A bare status update must not reach it.
	if input.ToStatus == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor orders are cancelled through order cancellation, not a status update")
	}

	var updated *models.VendorOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		vendorOrder, err := repo.FindVendorOrder(ctx, input.VendorOrderID)
		if err != nil {
			return err
		}
		if vendorOrder.VendorID != input.VendorID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found")
		}
		if err := ValidateTransition(vendorOrder.Status, input.ToStatus); err != nil {
			return err
		}

		expectedVersion := input.ExpectedVersion
		if expectedVersion == 0 {
			expectedVersion = vendorOrder.Version
		}
		ok, err := repo.UpdateVendorOrderStatus(ctx, vendorOrder.ID, expectedVersion, VendorOrderUpdate{
			Status:            input.ToStatus,
			TrackingNumber:    input.TrackingNumber,
			EstimatedDelivery: input.EstimatedDelivery,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "vendor order was modified by another request").
				WithDetails(map[string]any{"vendor_order_id": vendorOrder.ID, "expected_version": expectedVersion})
		}

		parentStatus, err := s.recomputeParentTx(ctx, repo, vendorOrder.OrderID)
		if err != nil {
			return err
		}

		fromStatus := vendorOrder.Status
		updated, err = repo.FindVendorOrder(ctx, vendorOrder.ID)
		if err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateVendorOrder,
			AggregateID:   vendorOrder.ID,
			Actor:         &outbox.ActorRef{ActorID: input.VendorID, Role: enums.ActorRoleVendor.String()},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:       vendorOrder.OrderID,
				VendorOrderID: vendorOrder.ID,
				VendorID:      vendorOrder.VendorID,
				FromStatus:    fromStatus,
				ToStatus:      input.ToStatus,
				ParentStatus:  parentStatus,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"vendor_order_id": input.VendorOrderID,
		"to_status":       input.ToStatus.String(),
	}), "vendor order status updated")
	return updated, nil
}

// recomputeParentTx derives the order status from its children and persists
// it when it changed.
func (s *service) recomputeParentTx(ctx context.Context, repo Repository, orderID uuid.UUID) (enums.OrderStatus, error) {
	statuses, err := repo.ChildStatuses(ctx, orderID)
	if err != nil {
		return "", err
	}
	derived := DeriveParentStatus(statuses)

	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status == derived {
		return derived, nil
	}
	if err := repo.UpdateOrderStatus(ctx, orderID, derived); err != nil {
		return "", err
	}
	return derived, nil
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
