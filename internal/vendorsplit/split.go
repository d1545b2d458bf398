package vendorsplit

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
)

// TotalReconciliationToleranceCents bounds how far the parent order total may
// drift from the sum of its vendor order totals before the split is rejected.
const TotalReconciliationToleranceCents = 5000

// Item is one cart line carrying its catalog snapshot.
type Item struct {
	ProductID      uuid.UUID
	VendorID       uuid.UUID
	Name           string
	SKU            string
	UnitPriceCents int64
	Qty            int
}

// LineTotalCents returns the extended price for the line.
func (i Item) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Qty)
}

// VendorGroup is the per-vendor slice of a checkout.
type VendorGroup struct {
	VendorID      uuid.UUID
	Items         []Item
	SubtotalCents int64
	ShippingCents int64
	TotalCents    int64
}

// Result carries the full split plus order-level totals.
type Result struct {
	Groups        []VendorGroup
	SubtotalCents int64
	ShippingCents int64
	TaxCents      int64
	TotalCents    int64
}

// Split partitions cart lines by vendor and prices each group with a flat
// shipping fee. Tax applies once at the order level on the merchandise
// subtotal. Groups are ordered by vendor id so the output is deterministic.
func Split(items []Item, flatShippingCents int64, taxRateBPS int64) (*Result, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no items to split")
	}

	grouped := make(map[uuid.UUID][]Item)
	for _, item := range items {
		if item.VendorID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item missing vendor id").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if item.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item price cannot be negative").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		grouped[item.VendorID] = append(grouped[item.VendorID], item)
	}

	vendorIDs := make([]uuid.UUID, 0, len(grouped))
	for vendorID := range grouped {
		vendorIDs = append(vendorIDs, vendorID)
	}
	sort.Slice(vendorIDs, func(i, j int) bool {
		return vendorIDs[i].String() < vendorIDs[j].String()
	})

	result := &Result{Groups: make([]VendorGroup, 0, len(vendorIDs))}
	for _, vendorID := range vendorIDs {
		group := VendorGroup{VendorID: vendorID, Items: grouped[vendorID], ShippingCents: flatShippingCents}
		for _, item := range group.Items {
			group.SubtotalCents += item.LineTotalCents()
		}
		group.TotalCents = group.SubtotalCents + group.ShippingCents

		result.SubtotalCents += group.SubtotalCents
		result.ShippingCents += group.ShippingCents
		result.Groups = append(result.Groups, group)
	}

	result.TaxCents = TaxCents(result.SubtotalCents, taxRateBPS)
	result.TotalCents = result.SubtotalCents + result.ShippingCents + result.TaxCents

	if err := reconcile(result); err != nil {
		return nil, err
	}
	return result, nil
}

// TaxCents computes basis-point tax with half-up rounding on exact decimals.
// Cart views and checkout both price tax through this one function.
func TaxCents(subtotalCents int64, rateBPS int64) int64 {
	if subtotalCents <= 0 || rateBPS <= 0 {
		return 0
	}
	subtotal := decimal.NewFromInt(subtotalCents)
	rate := decimal.NewFromInt(rateBPS).Div(decimal.NewFromInt(10000))
	return subtotal.Mul(rate).Round(0).IntPart()
}

// reconcile verifies the parent total equals the vendor totals plus tax,
// within tolerance. Anything larger indicates a pricing bug and fails closed.
func reconcile(result *Result) error {
	var vendorSum int64
	for _, group := range result.Groups {
		vendorSum += group.TotalCents
	}
	drift := result.TotalCents - (vendorSum + result.TaxCents)
	if drift < 0 {
		drift = -drift
	}
	if drift > TotalReconciliationToleranceCents {
		return pkgerrors.New(pkgerrors.CodeInternal, "split totals failed reconciliation").
			WithDetails(map[string]any{
				"order_total_cents": result.TotalCents,
				"vendor_sum_cents":  vendorSum,
				"tax_cents":         result.TaxCents,
				"drift_cents":       drift,
			})
	}
	return nil
}
