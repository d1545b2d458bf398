package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	"github.com/vendorhub/vendorhub-backend/pkg/types"
)

// Order is the customer-facing aggregate produced by one checkout. Its status
// is derived from its vendor orders and recomputed on every child write.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID      uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	Status          enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	Currency        enums.Currency      `gorm:"column:currency;not null;default:'USD'"`
	ShippingAddress types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	SubtotalCents   int                 `gorm:"column:subtotal_cents;not null"`
	TaxCents        int                 `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents   int                 `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents      int                 `gorm:"column:total_cents;not null"`
	PaymentRef      *string             `gorm:"column:payment_ref"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	CancelReason    *string             `gorm:"column:cancel_reason"`
	CancelledBy     *uuid.UUID          `gorm:"column:cancelled_by;type:uuid"`
	CancelledAt     *time.Time          `gorm:"column:cancelled_at"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	VendorOrders    []VendorOrder       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
