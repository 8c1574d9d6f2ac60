package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tdevries/commerce-bundles/internal/bundles"
)

// Repo implements bundles.Catalog over the commerce schema: products
// with stock-tracked variants.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetProduct(ctx context.Context, productID string) (bundles.Product, error) {
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
		return bundles.Product{}, err
	}
	if !exists {
		return bundles.Product{}, fmt.Errorf("product %s: %w", productID, bundles.ErrNotFound)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, stock, unlimited_stock
		FROM variants WHERE product_id=$1 ORDER BY sku`, productID)
	if err != nil {
		return bundles.Product{}, err
	}
	defer rows.Close()

	p := bundles.Product{ID: productID}
	for rows.Next() {
		var v bundles.Variant
		if err := rows.Scan(&v.ID, &v.SKU, &v.Stock, &v.UnlimitedStock); err != nil {
			return bundles.Product{}, err
		}
		p.Variants = append(p.Variants, v)
	}
	return p, rows.Err()
}

func (r *Repo) GetVariant(ctx context.Context, variantID string) (bundles.Variant, error) {
	var v bundles.Variant
	err := r.DB.QueryRow(ctx, `
		SELECT id, sku, stock, unlimited_stock FROM variants WHERE id=$1`, variantID).
		Scan(&v.ID, &v.SKU, &v.Stock, &v.UnlimitedStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return bundles.Variant{}, fmt.Errorf("variant %s: %w", variantID, bundles.ErrNotFound)
		}
		return bundles.Variant{}, err
	}
	return v, nil
}

// DecrementStock applies a relative decrement server-side in a single
// statement, so concurrent order completions for the same variant
// cannot lose updates. Unlimited-stock rows are left untouched.
func (r *Repo) DecrementStock(ctx context.Context, variantID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("variant %s: non-positive decrement %d", variantID, amount)
	}
	var newStock int
	err := r.DB.QueryRow(ctx, `
		UPDATE variants SET stock = stock - $2, updated_at = now()
		WHERE id=$1 AND NOT unlimited_stock
		RETURNING stock`, variantID, amount).Scan(&newStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("variant %s: %w", variantID, bundles.ErrNotFound)
		}
		return 0, err
	}
	return newStock, nil
}
