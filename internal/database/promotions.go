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

const promotionColumns = `id, name_en, name_ar, description_en, description_ar, code,
	discount_type, value, min_order_value, usage_limit, usage_count, active,
	starts_at, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// UpsertPromotion inserts or updates a promotion together with its
// conditions and rewards. The usage counter is never overwritten.
// A zero ID inserts a new row and the assigned ID is returned.
func (db *DB) UpsertPromotion(ctx context.Context, promo models.Promotion) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(db.now())
	args := []any{
		promo.Name.EN, promo.Name.AR, promo.Description.EN, promo.Description.AR,
		nullableString(promo.Code), string(promo.DiscountType),
		nullableDecimal(promo.Value), nullableDecimal(promo.MinOrderValue),
		nullableInt(promo.UsageLimit), promo.Active,
		nullableTime(promo.StartsAt), nullableTime(promo.ExpiresAt), now,
	}

	id := promo.ID
	if id == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO promotions (name_en, name_ar, description_en, description_ar, code,
				discount_type, value, min_order_value, usage_limit, active,
				starts_at, expires_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert promotion: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read promotion id: %w", err)
		}
	} else {
		if promo.UsageLimit != nil {
			var used int
			err := tx.QueryRowContext(ctx, `SELECT usage_count FROM promotions WHERE id = ?`, id).Scan(&used)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return 0, fmt.Errorf("failed to read usage count: %w", err)
			}
			if *promo.UsageLimit < used {
				return 0, ErrLimitBelowUsage
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO promotions (id, name_en, name_ar, description_en, description_ar, code,
				discount_type, value, min_order_value, usage_limit, active,
				starts_at, expires_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name_en = excluded.name_en,
				name_ar = excluded.name_ar,
				description_en = excluded.description_en,
				description_ar = excluded.description_ar,
				code = excluded.code,
				discount_type = excluded.discount_type,
				value = excluded.value,
				min_order_value = excluded.min_order_value,
				usage_limit = excluded.usage_limit,
				active = excluded.active,
				starts_at = excluded.starts_at,
				expires_at = excluded.expires_at,
				updated_at = excluded.updated_at`, append([]any{id}, args...)...)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert promotion: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM promotion_conditions WHERE promotion_id = ?`, id); err != nil {
		return 0, fmt.Errorf("failed to clear conditions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM promotion_rewards WHERE promotion_id = ?`, id); err != nil {
		return 0, fmt.Errorf("failed to clear rewards: %w", err)
	}

	condStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO promotion_conditions (promotion_id, type, entity_id, min_quantity)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare condition statement: %w", err)
	}
	defer condStmt.Close()

	for _, c := range promo.Conditions {
		if _, err := condStmt.ExecContext(ctx, id, string(c.Type), c.EntityID, nullableInt(c.MinQuantity)); err != nil {
			return 0, fmt.Errorf("failed to insert condition: %w", err)
		}
	}

	rewardStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO promotion_rewards (promotion_id, type, entity_id, quantity, discount_percentage)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare reward statement: %w", err)
	}
	defer rewardStmt.Close()

	for _, r := range promo.Rewards {
		if _, err := rewardStmt.ExecContext(ctx, id, string(r.Type), r.EntityID, r.Quantity, r.DiscountPercentage.String()); err != nil {
			return 0, fmt.Errorf("failed to insert reward: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

// GetPromotion loads a promotion with its conditions and rewards.
func (db *DB) GetPromotion(ctx context.Context, id int64) (*models.Promotion, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = ?`, id)
	return db.loadPromotion(ctx, row)
}

// FindPromotionByCode loads the promotion carrying code. Codes are matched
// exactly.
func (db *DB) FindPromotionByCode(ctx context.Context, code string) (*models.Promotion, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE code = ?`, code)
	return db.loadPromotion(ctx, row)
}

// ListAutomaticPromotions returns active code-less promotions whose window
// contains now, ordered by id.
func (db *DB) ListAutomaticPromotions(ctx context.Context, now time.Time) ([]models.Promotion, error) {
	ts := formatTime(now)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+promotionColumns+`
		FROM promotions
		WHERE active = 1
			AND code IS NULL
			AND (starts_at IS NULL OR starts_at <= ?)
			AND (expires_at IS NULL OR expires_at >= ?)
		ORDER BY id`, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query automatic promotions: %w", err)
	}

	var promotions []models.Promotion
	for rows.Next() {
		promo, err := scanPromotion(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		promotions = append(promotions, *promo)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating promotions: %w", err)
	}
	rows.Close()

	// Children are loaded after the cursor is closed: the pool holds a
	// single connection.
	for i := range promotions {
		if err := db.loadChildren(ctx, &promotions[i]); err != nil {
			return nil, err
		}
	}

	return promotions, nil
}

func (db *DB) loadPromotion(ctx context.Context, row *sql.Row) (*models.Promotion, error) {
	promo, err := scanPromotion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := db.loadChildren(ctx, promo); err != nil {
		return nil, err
	}
	return promo, nil
}

func scanPromotion(row rowScanner) (*models.Promotion, error) {
	var (
		p                   models.Promotion
		code                sql.NullString
		discountType        string
		value, minOrder     decimal.NullDecimal
		usageLimit          sql.NullInt64
		startsAt, expiresAt sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name.EN, &p.Name.AR, &p.Description.EN, &p.Description.AR, &code,
		&discountType, &value, &minOrder, &usageLimit, &p.UsageCount, &p.Active,
		&startsAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan promotion: %w", err)
	}

	p.Code = stringPtr(code)
	p.DiscountType = models.DiscountType(discountType)
	p.Value = decimalPtr(value)
	p.MinOrderValue = decimalPtr(minOrder)
	p.UsageLimit = intPtr(usageLimit)
	if p.StartsAt, err = parseNullTime(startsAt, "starts_at"); err != nil {
		return nil, err
	}
	if p.ExpiresAt, err = parseNullTime(expiresAt, "expires_at"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) loadChildren(ctx context.Context, promo *models.Promotion) error {
	condRows, err := db.conn.QueryContext(ctx, `
		SELECT id, promotion_id, type, entity_id, min_quantity
		FROM promotion_conditions WHERE promotion_id = ? ORDER BY id`, promo.ID)
	if err != nil {
		return fmt.Errorf("failed to query conditions: %w", err)
	}
	defer condRows.Close()

	promo.Conditions = []models.PromotionCondition{}
	for condRows.Next() {
		var (
			c      models.PromotionCondition
			kind   string
			minQty sql.NullInt64
		)
		if err := condRows.Scan(&c.ID, &c.PromotionID, &kind, &c.EntityID, &minQty); err != nil {
			return fmt.Errorf("failed to scan condition: %w", err)
		}
		c.Type = models.ConditionType(kind)
		c.MinQuantity = intPtr(minQty)
		promo.Conditions = append(promo.Conditions, c)
	}
	if err := condRows.Err(); err != nil {
		return fmt.Errorf("error iterating conditions: %w", err)
	}
	condRows.Close()

	rewardRows, err := db.conn.QueryContext(ctx, `
		SELECT id, promotion_id, type, entity_id, quantity, discount_percentage
		FROM promotion_rewards WHERE promotion_id = ? ORDER BY id`, promo.ID)
	if err != nil {
		return fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rewardRows.Close()

	promo.Rewards = []models.PromotionReward{}
	for rewardRows.Next() {
		var (
			r    models.PromotionReward
			kind string
		)
		if err := rewardRows.Scan(&r.ID, &r.PromotionID, &kind, &r.EntityID, &r.Quantity, &r.DiscountPercentage); err != nil {
			return fmt.Errorf("failed to scan reward: %w", err)
		}
		r.Type = models.RewardType(kind)
		promo.Rewards = append(promo.Rewards, r)
	}
	if err := rewardRows.Err(); err != nil {
		return fmt.Errorf("error iterating rewards: %w", err)
	}

	return nil
}

// CountActivePromotions returns the number of active code and automatic
// promotions.
func (db *DB) CountActivePromotions(ctx context.Context) (coded, automatic int, err error) {
	err = db.conn.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN code IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN code IS NULL THEN 1 ELSE 0 END), 0)
		FROM promotions WHERE active = 1`).Scan(&coded, &automatic)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count promotions: %w", err)
	}
	return coded, automatic, nil
}
