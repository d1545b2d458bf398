package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/vendorhub-backend/internal/vendorsplit"
)

// Line is one product entry in a customer's cart. Price and vendor are
// snapshotted at add time; checkout revalidates against the live catalog.
type Line struct {
	ProductID      uuid.UUID `json:"product_id"`
	VendorID       uuid.UUID `json:"vendor_id"`
	Name           string    `json:"name"`
	SKU            string    `json:"sku"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Qty            int       `json:"qty"`
}

// Cart is the aggregate stored as a single JSON document per customer.
type Cart struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Lines      []Line    `json:"lines"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// LineFor returns the index of the line holding productID, or -1.
func (c *Cart) LineFor(productID uuid.UUID) int {
	for i, line := range c.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// TotalQty sums quantities across all lines.
func (c *Cart) TotalQty() int {
	total := 0
	for _, line := range c.Lines {
		total += line.Qty
	}
	return total
}

// SubtotalCents sums extended line prices.
func (c *Cart) SubtotalCents() int64 {
	var subtotal int64
	for _, line := range c.Lines {
		subtotal += line.UnitPriceCents * int64(line.Qty)
	}
	return subtotal
}

// SplitItems converts the cart into the splitter's input shape.
func (c *Cart) SplitItems() []vendorsplit.Item {
	items := make([]vendorsplit.Item, len(c.Lines))
	for i, line := range c.Lines {
		items[i] = vendorsplit.Item{
			ProductID:      line.ProductID,
			VendorID:       line.VendorID,
			Name:           line.Name,
			SKU:            line.SKU,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            line.Qty,
		}
	}
	return items
}
