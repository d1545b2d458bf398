package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots one purchased line. The unit price is captured at order
// time and never follows later catalog price changes. Each row belongs to both
// the order (flattened view) and the vendor order that fulfills it.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	VendorOrderID  uuid.UUID `gorm:"column:vendor_order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	VendorID       uuid.UUID `gorm:"column:vendor_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	SKU            string    `gorm:"column:sku;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	TotalCents     int       `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
