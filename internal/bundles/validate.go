package bundles

import "github.com/shopspring/decimal"

// Validate checks the fields an author must fill in before a bundle can
// be saved: sku, positive price, at least one constituent, and a sane
// availability window. Settlement never sees an invalid bundle.
func (b *Bundle) Validate() error {
	fields := map[string]string{}

	if b.SKU == "" {
		fields["sku"] = "is required"
	}
	if b.Price.LessThanOrEqual(decimal.Zero) {
		fields["price"] = "must be greater than zero"
	}
	if len(b.Constituents) == 0 {
		fields["products"] = "at least one product is required"
	}
	for _, c := range b.Constituents {
		if c.ProductID == "" || c.VariantID == "" {
			fields["products"] = "every product needs a product and variant reference"
			break
		}
		if c.Multiplier < 1 {
			fields["products"] = "quantity multiplier must be at least 1"
			break
		}
	}
	if b.PostDate != nil && b.ExpiryDate != nil && !b.ExpiryDate.After(*b.PostDate) {
		fields["expiryDate"] = "must be after the post date"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
