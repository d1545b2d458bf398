package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRecord tracks per-product stock counts. Available stock is derived:
// total - reserved - committed, and must never go negative.
type InventoryRecord struct {
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	TotalQty          int       `gorm:"column:total_qty;not null;default:0"`
	ReservedQty       int       `gorm:"column:reserved_qty;not null;default:0"`
	CommittedQty      int       `gorm:"column:committed_qty;not null;default:0"`
	TrackingEnabled   bool      `gorm:"column:tracking_enabled;not null;default:true"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold;not null;default:0"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// AvailableQty returns the stock a new reservation or commit may draw from.
func (r InventoryRecord) AvailableQty() int {
	return r.TotalQty - r.ReservedQty - r.CommittedQty
}
