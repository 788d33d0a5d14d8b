package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"promotion-engine/internal/models"
)

const directPromotionColumns = `id, name_en, name_ar, description_en, description_ar, type,
	discount_percentage, scope, target_id, min_order_amount, active, starts_at, expires_at`

// PriceRewrite describes the activation of a price discount campaign.
type PriceRewrite struct {
	PromotionID int64
	Scope       models.DiscountScope
	TargetID    string
	// Reprice maps a variant's original price to its discounted price.
	Reprice func(original decimal.Decimal) decimal.Decimal
}

// UpsertDirectPromotion inserts or updates a direct promotion. The active
// flag is left untouched on update and starts false on insert; activation
// goes through ApplyPriceDiscount or SetDirectPromotionActive. Active rows
// are never rewritten: ErrDirectPromotionActive is returned instead.
func (db *DB) UpsertDirectPromotion(ctx context.Context, d models.DirectPromotion) (int64, error) {
	now := formatTime(db.now())
	args := []any{
		d.Name.EN, d.Name.AR, d.Description.EN, d.Description.AR, string(d.Type),
		nullableDecimal(d.DiscountPercentage), nullableScope(d.Scope), nullableString(d.TargetID),
		nullableDecimal(d.MinOrderAmount), nullableTime(d.StartsAt), nullableTime(d.ExpiresAt), now,
	}

	if d.ID == 0 {
		res, err := db.conn.ExecContext(ctx, `
			INSERT INTO direct_promotions (name_en, name_ar, description_en, description_ar, type,
				discount_percentage, scope, target_id, min_order_amount, starts_at, expires_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert direct promotion: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read direct promotion id: %w", err)
		}
		return id, nil
	}

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO direct_promotions (id, name_en, name_ar, description_en, description_ar, type,
			discount_percentage, scope, target_id, min_order_amount, starts_at, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name_en = excluded.name_en,
			name_ar = excluded.name_ar,
			description_en = excluded.description_en,
			description_ar = excluded.description_ar,
			type = excluded.type,
			discount_percentage = excluded.discount_percentage,
			scope = excluded.scope,
			target_id = excluded.target_id,
			min_order_amount = excluded.min_order_amount,
			starts_at = excluded.starts_at,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
		WHERE direct_promotions.active = 0`, append([]any{d.ID}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert direct promotion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return 0, ErrDirectPromotionActive
	}
	return d.ID, nil
}

// GetDirectPromotion loads a direct promotion by id.
func (db *DB) GetDirectPromotion(ctx context.Context, id int64) (*models.DirectPromotion, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+directPromotionColumns+` FROM direct_promotions WHERE id = ?`, id)
	d, err := scanDirectPromotion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListActiveFreeShipping returns active FREE_SHIPPING campaigns whose window
// contains now.
func (db *DB) ListActiveFreeShipping(ctx context.Context, now time.Time) ([]models.DirectPromotion, error) {
	ts := formatTime(now)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+directPromotionColumns+`
		FROM direct_promotions
		WHERE active = 1
			AND type = ?
			AND (starts_at IS NULL OR starts_at <= ?)
			AND (expires_at IS NULL OR expires_at >= ?)
		ORDER BY id`, string(models.DirectFreeShipping), ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query free shipping promotions: %w", err)
	}
	defer rows.Close()

	var promotions []models.DirectPromotion
	for rows.Next() {
		d, err := scanDirectPromotion(rows)
		if err != nil {
			return nil, err
		}
		promotions = append(promotions, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating free shipping promotions: %w", err)
	}

	return promotions, nil
}

// SetDirectPromotionActive flips the active flag of a direct promotion.
func (db *DB) SetDirectPromotionActive(ctx context.Context, id int64, active bool) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE direct_promotions SET active = ?, updated_at = ? WHERE id = ?`,
		active, formatTime(db.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update direct promotion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyPriceDiscount activates a price discount campaign in one transaction:
// prices discounted by any earlier campaign are restored, other active price
// discounts are deactivated, every targeted variant is repriced from its
// original price and the campaign is marked active. Either all of it
// happens or none of it does.
func (db *DB) ApplyPriceDiscount(ctx context.Context, rw PriceRewrite) (models.ApplyResult, error) {
	var result models.ApplyResult

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(db.now())

	result.RevertedCount, err = restorePrices(ctx, tx, now)
	if err != nil {
		return result, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE direct_promotions SET active = 0, updated_at = ?
		WHERE type = ? AND active = 1 AND id <> ?`,
		now, string(models.DirectPriceDiscount), rw.PromotionID); err != nil {
		return result, fmt.Errorf("failed to deactivate price discounts: %w", err)
	}

	query := `
		SELECT v.id, v.price, v.original_price
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.active = 1 AND p.active = 1`
	var args []any
	switch rw.Scope {
	case models.ScopeCategory:
		query += ` AND p.category_id = ?`
		args = append(args, rw.TargetID)
	case models.ScopeBrand:
		query += ` AND p.brand_id = ?`
		args = append(args, rw.TargetID)
	case models.ScopeAllProducts:
	default:
		return result, fmt.Errorf("unsupported discount scope %q", rw.Scope)
	}
	query += ` ORDER BY v.id`

	type target struct {
		id       string
		price    decimal.Decimal
		original decimal.NullDecimal
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return result, fmt.Errorf("failed to query target variants: %w", err)
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.price, &t.original); err != nil {
			rows.Close()
			return result, fmt.Errorf("failed to scan variant: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return result, fmt.Errorf("error iterating variants: %w", err)
	}
	rows.Close()

	// original_price keeps the stored text of the price column so a revert
	// restores it exactly.
	stmt, err := tx.PrepareContext(ctx, `
		UPDATE product_variants
		SET original_price = COALESCE(original_price, price), price = ?, updated_at = ?
		WHERE id = ?`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range targets {
		original := t.price
		if t.original.Valid {
			original = t.original.Decimal
		}
		if _, err := stmt.ExecContext(ctx, rw.Reprice(original).String(), now, t.id); err != nil {
			return result, fmt.Errorf("failed to reprice variant %s: %w", t.id, err)
		}
		result.AppliedCount++
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE direct_promotions SET active = 1, updated_at = ? WHERE id = ?`, now, rw.PromotionID)
	if err != nil {
		return result, fmt.Errorf("failed to activate direct promotion: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to read affected rows: %w", err)
	} else if affected == 0 {
		return result, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// RevertPriceDiscounts restores every discounted variant to its original
// price and deactivates all price discount campaigns.
func (db *DB) RevertPriceDiscounts(ctx context.Context) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(db.now())

	reverted, err := restorePrices(ctx, tx, now)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE direct_promotions SET active = 0, updated_at = ? WHERE type = ? AND active = 1`,
		now, string(models.DirectPriceDiscount)); err != nil {
		return 0, fmt.Errorf("failed to deactivate price discounts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return reverted, nil
}

func restorePrices(ctx context.Context, tx *sql.Tx, now string) (int, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE product_variants
		SET price = original_price, original_price = NULL, updated_at = ?
		WHERE original_price IS NOT NULL`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to restore prices: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// DirectPromotionStats counts active direct promotions and discounted variants.
// The code and automatic promotion counts are left zero.
func (db *DB) DirectPromotionStats(ctx context.Context) (models.PromotionStats, error) {
	var stats models.PromotionStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN active = 1 AND type = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN active = 1 AND type = ? THEN 1 ELSE 0 END), 0)
		FROM direct_promotions`,
		string(models.DirectPriceDiscount), string(models.DirectFreeShipping)).
		Scan(&stats.ActivePromotions, &stats.PriceDiscountPromotions, &stats.FreeShippingPromotions)
	if err != nil {
		return stats, fmt.Errorf("failed to count direct promotions: %w", err)
	}

	if err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM product_variants WHERE original_price IS NOT NULL`).
		Scan(&stats.DiscountedVariants); err != nil {
		return stats, fmt.Errorf("failed to count discounted variants: %w", err)
	}

	return stats, nil
}

func scanDirectPromotion(row rowScanner) (*models.DirectPromotion, error) {
	var (
		d                   models.DirectPromotion
		kind                string
		pct, minAmount      decimal.NullDecimal
		scope, targetID     sql.NullString
		startsAt, expiresAt sql.NullString
	)
	err := row.Scan(&d.ID, &d.Name.EN, &d.Name.AR, &d.Description.EN, &d.Description.AR, &kind,
		&pct, &scope, &targetID, &minAmount, &d.Active, &startsAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan direct promotion: %w", err)
	}

	d.Type = models.DirectPromotionType(kind)
	d.DiscountPercentage = decimalPtr(pct)
	d.Scope = models.DiscountScope(scope.String)
	d.TargetID = stringPtr(targetID)
	d.MinOrderAmount = decimalPtr(minAmount)
	if d.StartsAt, err = parseNullTime(startsAt, "starts_at"); err != nil {
		return nil, err
	}
	if d.ExpiresAt, err = parseNullTime(expiresAt, "expires_at"); err != nil {
		return nil, err
	}
	return &d, nil
}

func nullableScope(s models.DiscountScope) any {
	if s == "" {
		return nil
	}
	return string(s)
}
