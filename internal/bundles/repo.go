package bundles

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo persists bundles and their constituent rows.
type Repo struct{ DB *pgxpool.Pool }

// Save validates and writes the bundle plus its constituent list in one
// transaction. A new bundle gets an id here; an enabled bundle with no
// post date gets one defaulted to now, so a freshly enabled bundle goes
// live immediately.
func (r *Repo) Save(ctx context.Context, b *Bundle) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if b.Enabled && b.PostDate == nil {
		b.PostDate = &now
	}

	isNew := b.ID == ""
	if isNew {
		b.ID = uuid.NewString()
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO bundles(id, title, slug, sku, price, enabled, post_date, expiry_date,
		                    tax_category_id, shipping_category_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			title=$2, slug=$3, sku=$4, price=$5, enabled=$6, post_date=$7,
			expiry_date=$8, tax_category_id=$9, shipping_category_id=$10, updated_at=$12
	`, b.ID, b.Title, b.Slug, b.SKU, b.Price, b.Enabled, b.PostDate, b.ExpiryDate,
		b.TaxCategoryID, b.ShippingCategoryID, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return "", err
	}

	// Constituents are replaced wholesale; position keeps author order.
	if _, err := tx.Exec(ctx, `DELETE FROM bundle_constituents WHERE bundle_id=$1`, b.ID); err != nil {
		return "", err
	}
	for i, c := range b.Constituents {
		_, err := tx.Exec(ctx, `
			INSERT INTO bundle_constituents(bundle_id, position, product_id, variant_id, multiplier)
			VALUES ($1,$2,$3,$4,$5)`,
			b.ID, i, c.ProductID, c.VariantID, c.Multiplier)
		if err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return b.ID, nil
}

// Load fetches a bundle with its constituents in author order.
func (r *Repo) Load(ctx context.Context, id string) (*Bundle, error) {
	var b Bundle
	err := r.DB.QueryRow(ctx, `
		SELECT id, title, slug, sku, price, enabled, post_date, expiry_date,
		       tax_category_id, shipping_category_id, created_at, updated_at
		FROM bundles WHERE id=$1`, id).
		Scan(&b.ID, &b.Title, &b.Slug, &b.SKU, &b.Price, &b.Enabled, &b.PostDate,
			&b.ExpiryDate, &b.TaxCategoryID, &b.ShippingCategoryID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, variant_id, multiplier
		FROM bundle_constituents WHERE bundle_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c Constituent
		if err := rows.Scan(&c.ProductID, &c.VariantID, &c.Multiplier); err != nil {
			return nil, err
		}
		b.Constituents = append(b.Constituents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

// List returns all bundles without constituents, newest first.
func (r *Repo) List(ctx context.Context) ([]Bundle, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, title, slug, sku, price, enabled, post_date, expiry_date,
		       tax_category_id, shipping_category_id, created_at, updated_at
		FROM bundles ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bundle
	for rows.Next() {
		var b Bundle
		if err := rows.Scan(&b.ID, &b.Title, &b.Slug, &b.SKU, &b.Price, &b.Enabled, &b.PostDate,
			&b.ExpiryDate, &b.TaxCategoryID, &b.ShippingCategoryID, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
