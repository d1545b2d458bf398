package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
)

// Notifier delivers customer and vendor notifications. Implementations must
// never fail the calling operation: delivery problems are logged and dropped.
type Notifier interface {
	OrderConfirmed(ctx context.Context, customerID, orderID uuid.UUID, totalCents int)
	OrderStatusChanged(ctx context.Context, customerID, orderID uuid.UUID, status enums.OrderStatus)
	VendorOrderReceived(ctx context.Context, vendorID, vendorOrderID uuid.UUID)
	OrderCancelled(ctx context.Context, customerID, orderID uuid.UUID, reason string)
}

// Sender is the delivery channel behind the notifier (email, push, webhook).
type Sender interface {
	Send(ctx context.Context, recipientID uuid.UUID, kind string, payload map[string]any) error
}

const sendTimeout = 10 * time.Second

type notifier struct {
	sender Sender
	logg   *logger.Logger
}

// New returns a fire-and-forget notifier over the given sender.
func New(sender Sender, logg *logger.Logger) Notifier {
	return &notifier{sender: sender, logg: logg}
}

func (n *notifier) OrderConfirmed(ctx context.Context, customerID, orderID uuid.UUID, totalCents int) {
	n.dispatch(ctx, customerID, "order.confirmed", map[string]any{
		"order_id":    orderID,
		"total_cents": totalCents,
	})
}

func (n *notifier) OrderStatusChanged(ctx context.Context, customerID, orderID uuid.UUID, status enums.OrderStatus) {
	n.dispatch(ctx, customerID, "order.status_changed", map[string]any{
		"order_id": orderID,
		"status":   status.String(),
	})
}

func (n *notifier) VendorOrderReceived(ctx context.Context, vendorID, vendorOrderID uuid.UUID) {
	n.dispatch(ctx, vendorID, "vendor_order.received", map[string]any{
		"vendor_order_id": vendorOrderID,
	})
}

func (n *notifier) OrderCancelled(ctx context.Context, customerID, orderID uuid.UUID, reason string) {
	n.dispatch(ctx, customerID, "order.cancelled", map[string]any{
		"order_id": orderID,
		"reason":   reason,
	})
}

// dispatch sends on a detached goroutine with its own deadline so a slow
// channel cannot stall the request that triggered it.
func (n *notifier) dispatch(ctx context.Context, recipientID uuid.UUID, kind string, payload map[string]any) {
	logCtx := n.logg.WithFields(context.WithoutCancel(ctx), map[string]any{
		"recipient_id": recipientID,
		"kind":         kind,
	})
	go func() {
		sendCtx, cancel := context.WithTimeout(logCtx, sendTimeout)
		defer cancel()
		if err := n.sender.Send(sendCtx, recipientID, kind, payload); err != nil {
			n.logg.Warn(logCtx, "notification delivery failed")
			return
		}
		n.logg.Info(logCtx, "notification sent")
	}()
}

// LogSender writes notifications to the log instead of an external channel.
// It stands in until a real delivery integration is configured.
type LogSender struct {
	logg *logger.Logger
}

// NewLogSender returns a Sender that only logs.
func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, recipientID uuid.UUID, kind string, payload map[string]any) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"recipient_id": recipientID,
		"kind":         kind,
		"payload":      payload,
	}), "notification")
	return nil
}
