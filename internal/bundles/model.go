package bundles

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bundle is a composite sellable item: its own SKU and price, plus a
// list of catalog products it is assembled from.
type Bundle struct {
	ID                 string
	Title              string
	Slug               string
	SKU                string
	Price              decimal.Decimal
	Enabled            bool
	PostDate           *time.Time
	ExpiryDate         *time.Time
	TaxCategoryID      *string
	ShippingCategoryID *string
	Constituents       []Constituent
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Constituent ties a bundle to one catalog product. VariantID is the
// purchasable whose stock counter the bundle draws down; Multiplier is
// how many units one bundle unit consumes (>= 1).
type Constituent struct {
	ProductID  string
	VariantID  string
	Multiplier int
}

// Description is what shows up in cart warnings.
func (b *Bundle) Description() string {
	if b.Title != "" {
		return b.Title
	}
	return b.SKU
}

// Product is a catalog product as seen by the engines: read-only.
type Product struct {
	ID       string
	Variants []Variant
}

// Variant is the stock-tracked unit beneath a product.
type Variant struct {
	ID             string
	SKU            string
	Stock          int
	UnlimitedStock bool
}

// HasStock reports whether any variant of the product can still be sold.
func (p Product) HasStock() bool {
	for _, v := range p.Variants {
		if v.UnlimitedStock || v.Stock > 0 {
			return true
		}
	}
	return false
}

// LineItem is a completed-order line referencing a bundle.
type LineItem struct {
	BundleID string
	Qty      int
}
