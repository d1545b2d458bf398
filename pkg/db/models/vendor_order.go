package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/vendorhub-backend/pkg/enums"
)

// VendorOrder is one vendor's fulfillable slice of an order. Version guards
// concurrent status updates: every write must match the version it read.
type VendorOrder struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	VendorID          uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null;index"`
	Status            enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	SubtotalCents     int               `gorm:"column:subtotal_cents;not null"`
	ShippingCents     int               `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents        int               `gorm:"column:total_cents;not null"`
	TrackingNumber    *string           `gorm:"column:tracking_number"`
	EstimatedDelivery *time.Time        `gorm:"column:estimated_delivery"`
	Version           int               `gorm:"column:version;not null;default:1"`
	Items             []OrderItem       `gorm:"foreignKey:VendorOrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
