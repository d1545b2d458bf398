package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/vendorhub-backend/pkg/enums"
)

// OrderCreatedEvent signals a new checkout split across vendors.
type OrderCreatedEvent struct {
	OrderID        uuid.UUID   `json:"order_id"`
	CustomerID     uuid.UUID   `json:"customer_id"`
	VendorOrderIDs []uuid.UUID `json:"vendor_order_ids"`
	TotalCents     int64       `json:"total_cents"`
	Currency       string      `json:"currency"`
}

// OrderConfirmedEvent is emitted once payment settles and stock commits.
type OrderConfirmedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	PaymentRef string    `json:"payment_ref"`
	TotalCents int64     `json:"total_cents"`
}

// OrderStatusChangedEvent surfaces every vendor order transition.
type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	VendorOrderID uuid.UUID         `json:"vendor_order_id"`
	VendorID      uuid.UUID         `json:"vendor_id"`
	FromStatus    enums.OrderStatus `json:"from_status"`
	ToStatus      enums.OrderStatus `json:"to_status"`
	ParentStatus  enums.OrderStatus `json:"parent_status"`
}

// OrderCancelledEvent is emitted whenever an order is cancelled before shipping.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	CancelledBy uuid.UUID `json:"cancelled_by"`
	CancelledAt time.Time       `json:"cancelled_at"`
	Reason      string          `json:"reason,omitempty"`
	RefundRef   string          `json:"refund_ref,omitempty"`
}

// ReservationExpiredEvent reports that a hold lapsed and stock was returned.
type ReservationExpiredEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	ExpiredAt     time.Time `json:"expired_at"`
	HoldCount     int       `json:"hold_count"`
}
