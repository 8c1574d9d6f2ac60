package bundles

import (
	"context"
	"fmt"
	"time"
)

// Catalog is what the stock engine needs from the catalog side: resolve
// products and variants, and apply relative stock decrements. The
// decrement must be atomic at the storage layer (a single
// `stock = stock - n` statement, not read-modify-write) so concurrent
// order completions cannot lose updates.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetVariant(ctx context.Context, variantID string) (Variant, error)
	DecrementStock(ctx context.Context, variantID string, amount int) (newStock int, err error)
}

// StockLevel is a quantity that may be uncapped.
type StockLevel struct {
	Qty       int
	Unlimited bool
}

// StockEngine computes aggregate bundle availability and settles
// constituent stock on order completion. Collaborators are injected;
// the engine holds no storage of its own.
type StockEngine struct {
	catalog Catalog
}

func NewStockEngine(catalog Catalog) *StockEngine {
	return &StockEngine{catalog: catalog}
}

// AvailableQuantity computes how many units of the bundle can be sold
// right now.
//
// A bundle is sellable only when every constituent product has stock,
// where "has stock" means any of its variants is unlimited or above
// zero. One constituent out of stock zeroes the whole bundle; there is
// no partial-bundle sale.
//
// The cap is the minimum over constituents of variantStock/multiplier
// for the variant each constituent settles against. Unlimited variants
// impose no cap; if none imposes one the level is Unlimited. Clamp and
// settlement therefore read the same counters.
func (e *StockEngine) AvailableQuantity(ctx context.Context, b *Bundle) (StockLevel, error) {
	limit := 0
	capped := false

	for _, c := range b.Constituents {
		product, err := e.catalog.GetProduct(ctx, c.ProductID)
		if err != nil {
			return StockLevel{}, fmt.Errorf("resolve product %s: %w", c.ProductID, err)
		}
		if !product.HasStock() {
			return StockLevel{}, nil
		}

		variant, err := e.catalog.GetVariant(ctx, c.VariantID)
		if err != nil {
			return StockLevel{}, fmt.Errorf("resolve variant %s: %w", c.VariantID, err)
		}
		if variant.UnlimitedStock {
			continue
		}

		units := variant.Stock / c.Multiplier
		if units < 0 {
			units = 0
		}
		if !capped || units < limit {
			limit = units
			capped = true
		}
	}

	if !capped {
		return StockLevel{Unlimited: true}, nil
	}
	return StockLevel{Qty: limit}, nil
}

// ValidateAndClamp caps a requested cart quantity at the bundle's
// available stock. It never fails: an oversell comes back as a clamped
// quantity plus a warning, and a resolution error conservatively clamps
// to zero. Re-running with the clamped quantity is a no-op while stock
// is unchanged.
func (e *StockEngine) ValidateAndClamp(ctx context.Context, b *Bundle, requestedQty int) (int, []string) {
	level, err := e.AvailableQuantity(ctx, b)
	if err != nil {
		return 0, []string{fmt.Sprintf("Stock for %s could not be determined", b.Description())}
	}
	if level.Unlimited || requestedQty <= level.Qty {
		return requestedQty, nil
	}
	return level.Qty, []string{fmt.Sprintf("You reached the maximum stock of %s", b.Description())}
}

// VariantDecrement records one applied (or attempted) stock decrement.
type VariantDecrement struct {
	VariantID string
	Amount    int
	NewStock  int
	Err       error
}

// SettlementResult enumerates what Settle did, per variant, for
// auditing. Failed reports whether any decrement could not be applied.
type SettlementResult struct {
	BundleID   string
	Decrements []VariantDecrement
	SettledAt  time.Time
}

func (r SettlementResult) Failed() bool {
	for _, d := range r.Decrements {
		if d.Err != nil {
			return true
		}
	}
	return false
}

// Settle decrements constituent stock for one completed order line.
// Call it exactly once per line item, on the completion transition.
//
// Amounts are aggregated per distinct variant first (a variant reachable
// through two constituents is decremented once, with the summed amount),
// then applied as atomic relative decrements. Unlimited-stock variants
// are skipped entirely. A failure on one variant does not stop the
// others; each outcome is reported in the result and the caller picks
// the retry/compensation policy.
func (e *StockEngine) Settle(ctx context.Context, b *Bundle, line LineItem) (SettlementResult, error) {
	result := SettlementResult{
		BundleID:  b.ID,
		SettledAt: time.Now().UTC(),
	}
	if line.Qty <= 0 {
		return result, fmt.Errorf("settle bundle %s: non-positive quantity %d", b.ID, line.Qty)
	}

	// Aggregate first so the constituent list is fixed for the whole
	// settlement and each variant gets a single decrement.
	amounts := map[string]int{}
	order := make([]string, 0, len(b.Constituents))
	for _, c := range b.Constituents {
		variant, err := e.catalog.GetVariant(ctx, c.VariantID)
		if err != nil {
			result.Decrements = append(result.Decrements, VariantDecrement{
				VariantID: c.VariantID,
				Amount:    line.Qty * c.Multiplier,
				Err:       fmt.Errorf("resolve variant: %w", err),
			})
			continue
		}
		if variant.UnlimitedStock {
			continue
		}
		if _, seen := amounts[c.VariantID]; !seen {
			order = append(order, c.VariantID)
		}
		amounts[c.VariantID] += line.Qty * c.Multiplier
	}

	for _, variantID := range order {
		amount := amounts[variantID]
		newStock, err := e.catalog.DecrementStock(ctx, variantID, amount)
		result.Decrements = append(result.Decrements, VariantDecrement{
			VariantID: variantID,
			Amount:    amount,
			NewStock:  newStock,
			Err:       err,
		})
	}

	return result, nil
}
