package cancellation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"gorm.io/gorm"

	"github.com/vendorhub/vendorhub-backend/internal/inventory"
	"github.com/vendorhub/vendorhub-backend/internal/orders"
	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
	"github.com/vendorhub/vendorhub-backend/pkg/metrics"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox/payloads"
	"github.com/vendorhub/vendorhub-backend/pkg/square"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type refundGateway interface {
	RefundPayment(ctx context.Context, params square.RefundCreateParams) (*sq.PaymentRefund, error)
}

// Input identifies the order to cancel and who is asking.
type Input struct {
	OrderID     uuid.UUID
	RequestedBy uuid.UUID
	Role        enums.ActorRole
	Reason      string
}

// Result reports the cancelled order and how the refund went. Cancellation
// stands even when the refund fails; the failure is surfaced for support to
// chase instead of resurrecting the order.
type Result struct {
	Order       *models.Order
	RefundRef   string
	RefundError string
}

// Service cancels orders and compensates their side effects.
type Service interface {
	CancelOrder(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	tx      txRunner
	repo    orders.Repository
	stock   inventory.Service
	refunds refundGateway
	outbox  outboxEmitter
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the cancellation engine.
func NewService(
	tx txRunner,
	repo orders.Repository,
	stock inventory.Service,
	refunds refundGateway,
	emitter outboxEmitter,
	checkoutMetrics *metrics.CheckoutMetrics,
	logg *logger.Logger,
) (Service, error) {
	switch {
	case tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case stock == nil:
		return nil, fmt.Errorf("inventory service required")
	case refunds == nil:
		return nil, fmt.Errorf("refund gateway required")
	case emitter == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case checkoutMetrics == nil:
		return nil, fmt.Errorf("checkout metrics required")
	case logg == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:      tx,
		repo:    repo,
		stock:   stock,
		refunds: refunds,
		outbox:  emitter,
		metrics: checkoutMetrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// CancelOrder cancels every vendor order, returns committed stock, and
// requests a refund for paid orders. The state changes commit in one
// transaction; the refund runs after commit so a gateway outage cannot hold
// the cancellation hostage.
func (s *service) CancelOrder(ctx context.Context, input Input) (*Result, error) {
	if input.OrderID == uuid.Nil || input.RequestedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and requester required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(order, input); err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is already cancelled")
	}
	if !orders.CanCancel(order.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
			WithDetails(map[string]any{"status": order.Status.String()})
	}

	cancelledAt := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ok, err := repo.MarkCancelled(ctx, order.ID, input.RequestedBy, input.Reason, cancelledAt)
		if err != nil {
			return err
		}
		// The guard lost a race with another cancel or a status advance.
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified by another request")
		}
		if _, err := repo.CancelVendorOrders(ctx, order.ID); err != nil {
			return err
		}

		if err := s.stock.Restore(ctx, tx, restoreRequests(order)); err != nil {
			return err
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: input.RequestedBy, Role: input.Role.String()},
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				CustomerID:  order.CustomerID,
				CancelledBy: input.RequestedBy,
				CancelledAt: cancelledAt,
				Reason:      input.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if order.PaymentStatus == enums.PaymentStatusPaid && order.PaymentRef != nil {
		result.RefundRef, result.RefundError = s.requestRefund(ctx, order)
	}

	cancelled, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	result.Order = cancelled

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID,
		"requested_by": input.RequestedBy,
		"refund_ref":   result.RefundRef,
	}), "order cancelled")
	return result, nil
}

func (s *service) authorize(order *models.Order, input Input) error {
	switch input.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleCustomer:
		if order.CustomerID == input.RequestedBy {
			return nil
		}
		// The same response as an unknown order keeps ownership unguessable.
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the customer or an admin may cancel an order")
	}
}

// requestRefund tries to return the money once. Failure is reported back to
// the caller and logged; the cancelled order keeps payment_status paid so the
// outstanding refund stays visible.
func (s *service) requestRefund(ctx context.Context, order *models.Order) (string, string) {
	s.metrics.IncRefund("order_cancelled")
	refund, err := s.refunds.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      *order.PaymentRef,
		AmountCents:    int64(order.TotalCents),
		Reason:         "order cancelled",
		IdempotencyKey: fmt.Sprintf("vh-cancel-%s", order.ID),
	})
	if err != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"order_id":    order.ID,
			"payment_ref": *order.PaymentRef,
		}), "refund request failed for cancelled order", err)
		return "", err.Error()
	}

	if err := s.repo.SetPaymentStatus(ctx, order.ID, enums.PaymentStatusRefunded); err != nil {
		s.logg.Error(ctx, "failed to record refunded payment status", err)
	}
	return refundID(refund), ""
}

func restoreRequests(order *models.Order) []inventory.StockRequest {
	requests := make([]inventory.StockRequest, 0, len(order.Items))
	for _, item := range order.Items {
		requests = append(requests, inventory.StockRequest{ProductID: item.ProductID, Qty: item.Qty})
	}
	return requests
}

func refundID(refund *sq.PaymentRefund) string {
	if refund == nil {
		return ""
	}
	return refund.GetID()
}
