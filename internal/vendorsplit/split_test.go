package vendorsplit

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
)

func TestSplitGroupsByVendor(t *testing.T) {
	vendorA := uuid.New()
	vendorB := uuid.New()

	items := []Item{
		{ProductID: uuid.New(), VendorID: vendorA, UnitPriceCents: 1000, Qty: 2},
		{ProductID: uuid.New(), VendorID: vendorB, UnitPriceCents: 500, Qty: 1},
		{ProductID: uuid.New(), VendorID: vendorA, UnitPriceCents: 250, Qty: 4},
	}

	result, err := Split(items, 999, 0)
	require.NoError(t, err)
	require.Len(t, result.Groups, 2)

	byVendor := map[uuid.UUID]VendorGroup{}
	for _, group := range result.Groups {
		byVendor[group.VendorID] = group
	}

	require.Equal(t, int64(3000), byVendor[vendorA].SubtotalCents)
	require.Len(t, byVendor[vendorA].Items, 2)
	require.Equal(t, int64(999), byVendor[vendorA].ShippingCents)
	require.Equal(t, int64(3999), byVendor[vendorA].TotalCents)

	require.Equal(t, int64(500), byVendor[vendorB].SubtotalCents)
	require.Equal(t, int64(1499), byVendor[vendorB].TotalCents)

	require.Equal(t, int64(3500), result.SubtotalCents)
	require.Equal(t, int64(1998), result.ShippingCents)
	require.Equal(t, int64(5498), result.TotalCents)
}

func TestSplitAppliesOrderLevelTax(t *testing.T) {
	items := []Item{
		{ProductID: uuid.New(), VendorID: uuid.New(), UnitPriceCents: 10000, Qty: 1},
	}

	// 875 bps = 8.75%
	result, err := Split(items, 0, 875)
	require.NoError(t, err)
	require.Equal(t, int64(875), result.TaxCents)
	require.Equal(t, int64(10875), result.TotalCents)
}

func TestSplitTaxRounding(t *testing.T) {
	items := []Item{
		{ProductID: uuid.New(), VendorID: uuid.New(), UnitPriceCents: 333, Qty: 1},
	}

	// 333 * 0.0875 = 29.1375, rounds to 29.
	result, err := Split(items, 0, 875)
	require.NoError(t, err)
	require.Equal(t, int64(29), result.TaxCents)
}

func TestSplitDeterministicOrder(t *testing.T) {
	vendorA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	vendorB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	items := []Item{
		{ProductID: uuid.New(), VendorID: vendorB, UnitPriceCents: 100, Qty: 1},
		{ProductID: uuid.New(), VendorID: vendorA, UnitPriceCents: 100, Qty: 1},
	}

	first, err := Split(items, 0, 0)
	require.NoError(t, err)
	second, err := Split([]Item{items[1], items[0]}, 0, 0)
	require.NoError(t, err)

	require.Equal(t, first.Groups[0].VendorID, second.Groups[0].VendorID)
	require.Equal(t, vendorA, first.Groups[0].VendorID)
}

func TestSplitVendorTotalsSumToOrderTotal(t *testing.T) {
	items := []Item{
		{ProductID: uuid.New(), VendorID: uuid.New(), UnitPriceCents: 1234, Qty: 3},
		{ProductID: uuid.New(), VendorID: uuid.New(), UnitPriceCents: 789, Qty: 2},
		{ProductID: uuid.New(), VendorID: uuid.New(), UnitPriceCents: 55, Qty: 10},
	}

	result, err := Split(items, 999, 875)
	require.NoError(t, err)

	var vendorSum int64
	for _, group := range result.Groups {
		vendorSum += group.TotalCents
	}
	drift := result.TotalCents - (vendorSum + result.TaxCents)
	if drift < 0 {
		drift = -drift
	}
	require.LessOrEqual(t, drift, int64(TotalReconciliationToleranceCents))
}

func TestSplitValidation(t *testing.T) {
	_, err := Split(nil, 0, 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Split([]Item{{ProductID: uuid.New(), VendorID: uuid.Nil, UnitPriceCents: 1, Qty: 1}}, 0, 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Split([]Item{{ProductID: uuid.New(), VendorID: uuid.New(), UnitPriceCents: 1, Qty: 0}}, 0, 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Split([]Item{{ProductID: uuid.New(), VendorID: uuid.New(), UnitPriceCents: -5, Qty: 1}}, 0, 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
