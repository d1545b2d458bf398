package enums

// OutboxEventType names the domain events published through the outbox.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order.created"
	EventOrderConfirmed     OutboxEventType = "order.confirmed"
	EventOrderStatusChanged OutboxEventType = "order.status_changed"
	EventOrderCancelled     OutboxEventType = "order.cancelled"
	EventReservationExpired OutboxEventType = "reservation.expired"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateVendorOrder OutboxAggregateType = "vendor_order"
	AggregateReservation OutboxAggregateType = "reservation"
)

// OutboxStatus tracks whether an event has been handed to the broker.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)
