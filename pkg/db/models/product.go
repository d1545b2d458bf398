package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog read model consumed by the cart, splitter, and stock checks.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID   uuid.UUID `gorm:"column:vendor_id;type:uuid;not null;index;uniqueIndex:ux_products_vendor_sku"`
	SKU        string    `gorm:"column:sku;not null;uniqueIndex:ux_products_vendor_sku"`
	Name       string    `gorm:"column:name;not null"`
	PriceCents int       `gorm:"column:price_cents;not null"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
