package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"promotion-engine/internal/models"
)

// UpsertProduct inserts or updates a product.
func (db *DB) UpsertProduct(ctx context.Context, p models.Product) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO products (id, category_id, brand_id, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category_id = excluded.category_id,
			brand_id = excluded.brand_id,
			active = excluded.active`,
		p.ID, p.CategoryID, p.BrandID, p.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// UpsertVariant inserts or updates a variant's base data. The original
// price column belongs to direct promotions and is not written here.
func (db *DB) UpsertVariant(ctx context.Context, v models.Variant) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO product_variants (id, product_id, price, active, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_id = excluded.product_id,
			price = excluded.price,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		v.ID, v.ProductID, v.Price.String(), v.Active, formatTime(db.now()))
	if err != nil {
		return fmt.Errorf("failed to upsert variant: %w", err)
	}
	return nil
}

// GetVariant loads a variant by id.
func (db *DB) GetVariant(ctx context.Context, id string) (*models.Variant, error) {
	var (
		v        models.Variant
		original decimal.NullDecimal
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, product_id, price, original_price, active
		FROM product_variants WHERE id = ?`, id).
		Scan(&v.ID, &v.ProductID, &v.Price, &original, &v.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query variant: %w", err)
	}
	v.OriginalPrice = decimalPtr(original)
	return &v, nil
}

// UpsertShippingArea inserts or updates a shipping area.
func (db *DB) UpsertShippingArea(ctx context.Context, area models.ShippingArea) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO shipping_areas (id, name, cost)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			cost = excluded.cost`,
		area.ID, area.Name, nullableDecimal(area.Cost))
	if err != nil {
		return fmt.Errorf("failed to upsert shipping area: %w", err)
	}
	return nil
}

// GetShippingArea loads a shipping area by id. A stored cost that is not a
// valid decimal is reported as missing.
func (db *DB) GetShippingArea(ctx context.Context, id string) (*models.ShippingArea, error) {
	var (
		area models.ShippingArea
		cost sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `SELECT id, name, cost FROM shipping_areas WHERE id = ?`, id).
		Scan(&area.ID, &area.Name, &cost)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query shipping area: %w", err)
	}
	if cost.Valid {
		if d, err := decimal.NewFromString(cost.String); err == nil {
			area.Cost = &d
		}
	}
	return &area, nil
}

// SetCartItem stores a cart row, replacing the quantity of an existing one.
// A non-positive quantity removes the row.
func (db *DB) SetCartItem(ctx context.Context, item models.CartItem) error {
	if item.Quantity <= 0 {
		_, err := db.conn.ExecContext(ctx, `
			DELETE FROM cart_items WHERE user_id = ? AND variant_id = ?`, item.UserID, item.VariantID)
		if err != nil {
			return fmt.Errorf("failed to remove cart item: %w", err)
		}
		return nil
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, variant_id, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, variant_id) DO UPDATE SET
			product_id = excluded.product_id,
			quantity = excluded.quantity`,
		item.UserID, item.ProductID, item.VariantID, item.Quantity)
	if err != nil {
		return fmt.Errorf("failed to store cart item: %w", err)
	}
	return nil
}

// LoadCartLines returns the priced lines of a user's cart. Rows pointing at
// inactive or missing products or variants are skipped.
func (db *DB) LoadCartLines(ctx context.Context, userID string) ([]models.CartLine, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT ci.product_id, ci.variant_id, p.category_id, p.brand_id, ci.quantity, v.price
		FROM cart_items ci
		JOIN product_variants v ON v.id = ci.variant_id
		JOIN products p ON p.id = v.product_id
		WHERE ci.user_id = ? AND v.active = 1 AND p.active = 1
		ORDER BY ci.rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		var line models.CartLine
		if err := rows.Scan(&line.ProductID, &line.VariantID, &line.CategoryID, &line.BrandID,
			&line.Quantity, &line.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart: %w", err)
	}

	return lines, nil
}
