package bundles

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog keeps variants in a map and applies decrements relative,
// like the SQL layer does.
type fakeCatalog struct {
	variants   map[string]*Variant
	byProduct  map[string][]string
	decrements []string // variant ids in decrement order
	failOn     map[string]error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		variants:  map[string]*Variant{},
		byProduct: map[string][]string{},
		failOn:    map[string]error{},
	}
}

func (f *fakeCatalog) addVariant(productID string, v Variant) {
	vv := v
	f.variants[v.ID] = &vv
	f.byProduct[productID] = append(f.byProduct[productID], v.ID)
}

func (f *fakeCatalog) GetProduct(_ context.Context, productID string) (Product, error) {
	ids, ok := f.byProduct[productID]
	if !ok {
		return Product{}, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	p := Product{ID: productID}
	for _, id := range ids {
		p.Variants = append(p.Variants, *f.variants[id])
	}
	return p, nil
}

func (f *fakeCatalog) GetVariant(_ context.Context, variantID string) (Variant, error) {
	v, ok := f.variants[variantID]
	if !ok {
		return Variant{}, fmt.Errorf("variant %s: %w", variantID, ErrNotFound)
	}
	return *v, nil
}

func (f *fakeCatalog) DecrementStock(_ context.Context, variantID string, amount int) (int, error) {
	if err := f.failOn[variantID]; err != nil {
		return 0, err
	}
	v, ok := f.variants[variantID]
	if !ok || v.UnlimitedStock {
		return 0, fmt.Errorf("variant %s: %w", variantID, ErrNotFound)
	}
	v.Stock -= amount
	f.decrements = append(f.decrements, variantID)
	return v.Stock, nil
}

func bundleWith(constituents ...Constituent) *Bundle {
	return &Bundle{
		ID:           "b1",
		Title:        "Breakfast Box",
		SKU:          "BOX-1",
		Price:        decimal.NewFromInt(25),
		Enabled:      true,
		Constituents: constituents,
	}
}

func TestAvailableQuantitySingleVariant(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 5})
	eng := NewStockEngine(cat)

	level, err := eng.AvailableQuantity(context.Background(), bundleWith(
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1},
	))
	require.NoError(t, err)
	assert.False(t, level.Unlimited)
	assert.Equal(t, 5, level.Qty)
}

func TestAvailableQuantityZeroWhenAnyConstituentOut(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 1000})
	cat.addVariant("p2", Variant{ID: "v2", Stock: 0})
	eng := NewStockEngine(cat)

	level, err := eng.AvailableQuantity(context.Background(), bundleWith(
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1},
		Constituent{ProductID: "p2", VariantID: "v2", Multiplier: 1},
	))
	require.NoError(t, err)
	assert.False(t, level.Unlimited)
	assert.Equal(t, 0, level.Qty)
}

func TestAvailableQuantityUsesProductUnionForStockGate(t *testing.T) {
	// The product is in stock because a sibling variant has units, even
	// though the settled variant is empty: the gate passes, the cap is 0.
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 0})
	cat.addVariant("p1", Variant{ID: "v1b", Stock: 7})
	eng := NewStockEngine(cat)

	level, err := eng.AvailableQuantity(context.Background(), bundleWith(
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1},
	))
	require.NoError(t, err)
	assert.Equal(t, 0, level.Qty)
}

func TestAvailableQuantityMultiplierDividesStock(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 7})
	eng := NewStockEngine(cat)

	level, err := eng.AvailableQuantity(context.Background(), bundleWith(
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 3},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, level.Qty)
}

func TestAvailableQuantityUnlimitedWhenNoCap(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", UnlimitedStock: true})
	cat.addVariant("p2", Variant{ID: "v2", UnlimitedStock: true})
	eng := NewStockEngine(cat)

	level, err := eng.AvailableQuantity(context.Background(), bundleWith(
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1},
		Constituent{ProductID: "p2", VariantID: "v2", Multiplier: 2},
	))
	require.NoError(t, err)
	assert.True(t, level.Unlimited)
}

func TestAvailableQuantityMixedUnlimitedAndFinite(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", UnlimitedStock: true})
	cat.addVariant("p2", Variant{ID: "v2", Stock: 4})
	eng := NewStockEngine(cat)

	level, err := eng.AvailableQuantity(context.Background(), bundleWith(
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1},
		Constituent{ProductID: "p2", VariantID: "v2", Multiplier: 1},
	))
	require.NoError(t, err)
	assert.False(t, level.Unlimited)
	assert.Equal(t, 4, level.Qty)
}

func TestAvailableQuantityPropagatesNotFound(t *testing.T) {
	cat := newFakeCatalog()
	eng := NewStockEngine(cat)

	_, err := eng.AvailableQuantity(context.Background(), bundleWith(
		Constituent{ProductID: "missing", VariantID: "v1", Multiplier: 1},
	))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestValidateAndClampWithinStock(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 10})
	eng := NewStockEngine(cat)
	b := bundleWith(Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1})

	accepted, warnings := eng.ValidateAndClamp(context.Background(), b, 3)
	assert.Equal(t, 3, accepted)
	assert.Empty(t, warnings)
}

func TestValidateAndClampOversellClampsWithWarning(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 5})
	eng := NewStockEngine(cat)
	b := bundleWith(Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1})

	accepted, warnings := eng.ValidateAndClamp(context.Background(), b, 8)
	assert.Equal(t, 5, accepted)
	require.Len(t, warnings, 1)
	assert.Equal(t, "You reached the maximum stock of Breakfast Box", warnings[0])
}

func TestValidateAndClampIsIdempotent(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 5})
	eng := NewStockEngine(cat)
	b := bundleWith(Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1})

	first, _ := eng.ValidateAndClamp(context.Background(), b, 8)
	second, warnings := eng.ValidateAndClamp(context.Background(), b, first)
	assert.Equal(t, first, second)
	assert.Empty(t, warnings)
}

func TestValidateAndClampUnlimitedAcceptsAnything(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", UnlimitedStock: true})
	eng := NewStockEngine(cat)
	b := bundleWith(Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1})

	accepted, warnings := eng.ValidateAndClamp(context.Background(), b, 100000)
	assert.Equal(t, 100000, accepted)
	assert.Empty(t, warnings)
}

func TestValidateAndClampOutOfStockBlocks(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 0})
	eng := NewStockEngine(cat)
	b := bundleWith(Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1})

	accepted, warnings := eng.ValidateAndClamp(context.Background(), b, 1)
	assert.Equal(t, 0, accepted)
	assert.Len(t, warnings, 1)
}

func TestSettleDecrementsByQtyTimesMultiplier(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 20})
	cat.addVariant("p2", Variant{ID: "v2", Stock: 30})
	eng := NewStockEngine(cat)
	b := bundleWith(
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 2},
		Constituent{ProductID: "p2", VariantID: "v2", Multiplier: 3},
	)

	result, err := eng.Settle(context.Background(), b, LineItem{BundleID: b.ID, Qty: 4})
	require.NoError(t, err)
	require.False(t, result.Failed())
	require.Len(t, result.Decrements, 2)

	assert.Equal(t, "v1", result.Decrements[0].VariantID)
	assert.Equal(t, 8, result.Decrements[0].Amount)
	assert.Equal(t, 12, result.Decrements[0].NewStock)

	assert.Equal(t, "v2", result.Decrements[1].VariantID)
	assert.Equal(t, 12, result.Decrements[1].Amount)
	assert.Equal(t, 18, result.Decrements[1].NewStock)
}

func TestSettleSkipsUnlimitedVariants(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", UnlimitedStock: true})
	cat.addVariant("p2", Variant{ID: "v2", Stock: 10})
	eng := NewStockEngine(cat)
	b := bundleWith(
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1},
		Constituent{ProductID: "p2", VariantID: "v2", Multiplier: 1},
	)

	result, err := eng.Settle(context.Background(), b, LineItem{BundleID: b.ID, Qty: 2})
	require.NoError(t, err)
	require.Len(t, result.Decrements, 1)
	assert.Equal(t, "v2", result.Decrements[0].VariantID)
	assert.Equal(t, []string{"v2"}, cat.decrements)
}

func TestSettleSumsSharedVariantAcrossConstituents(t *testing.T) {
	// Two constituents settle against the same variant: one decrement,
	// summed amount.
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 50})
	eng := NewStockEngine(cat)
	b := bundleWith(
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1},
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 2},
	)

	result, err := eng.Settle(context.Background(), b, LineItem{BundleID: b.ID, Qty: 3})
	require.NoError(t, err)
	require.Len(t, result.Decrements, 1)
	assert.Equal(t, 9, result.Decrements[0].Amount) // 3*1 + 3*2
	assert.Equal(t, 41, result.Decrements[0].NewStock)
	assert.Equal(t, []string{"v1"}, cat.decrements)
}

func TestSettlePartialFailureReportsPerVariant(t *testing.T) {
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 10})
	cat.addVariant("p2", Variant{ID: "v2", Stock: 10})
	cat.failOn["v2"] = errors.New("storage conflict")
	eng := NewStockEngine(cat)
	b := bundleWith(
		Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1},
		Constituent{ProductID: "p2", VariantID: "v2", Multiplier: 1},
	)

	result, err := eng.Settle(context.Background(), b, LineItem{BundleID: b.ID, Qty: 1})
	require.NoError(t, err)
	assert.True(t, result.Failed())
	require.Len(t, result.Decrements, 2)
	assert.NoError(t, result.Decrements[0].Err)
	assert.Error(t, result.Decrements[1].Err)
	// the successful decrement stays applied
	assert.Equal(t, 9, cat.variants["v1"].Stock)
}

func TestSettleRejectsNonPositiveQty(t *testing.T) {
	cat := newFakeCatalog()
	eng := NewStockEngine(cat)
	b := bundleWith(Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1})

	_, err := eng.Settle(context.Background(), b, LineItem{BundleID: b.ID, Qty: 0})
	require.Error(t, err)
}

func TestClampThenSettleScenario(t *testing.T) {
	// Requested 8 against stock 5: clamp accepts 5 with a warning, and
	// settling the clamped line drives the variant to zero.
	cat := newFakeCatalog()
	cat.addVariant("p1", Variant{ID: "v1", Stock: 5})
	eng := NewStockEngine(cat)
	b := bundleWith(Constituent{ProductID: "p1", VariantID: "v1", Multiplier: 1})

	accepted, warnings := eng.ValidateAndClamp(context.Background(), b, 8)
	require.Equal(t, 5, accepted)
	require.Len(t, warnings, 1)

	result, err := eng.Settle(context.Background(), b, LineItem{BundleID: b.ID, Qty: accepted})
	require.NoError(t, err)
	require.False(t, result.Failed())
	assert.Equal(t, 0, cat.variants["v1"].Stock)
}
