package database

import (
	"context"
	"fmt"

	"promotion-engine/internal/models"
)

// RecordUsage atomically increments the promotion's usage counter and
// appends the usage row. The increment only succeeds while the counter is
// below the limit, so concurrent callers can never push it past the limit.
// Returns ErrDuplicateUsage if the order already redeemed the promotion,
// ErrNotFound for an unknown promotion and ErrLimitReached when full.
func (db *DB) RecordUsage(ctx context.Context, usage models.PromotionUsage) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM promotion_usages WHERE promotion_id = ? AND order_id = ?`,
		usage.PromotionID, usage.OrderID).Scan(&existing); err != nil {
		return fmt.Errorf("failed to check existing usage: %w", err)
	}
	if existing > 0 {
		return ErrDuplicateUsage
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE promotions
		SET usage_count = usage_count + 1, updated_at = ?
		WHERE id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		formatTime(db.now()), usage.PromotionID)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		var found int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM promotions WHERE id = ?`, usage.PromotionID).Scan(&found); err != nil {
			return fmt.Errorf("failed to look up promotion: %w", err)
		}
		if found == 0 {
			return ErrNotFound
		}
		return ErrLimitReached
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO promotion_usages (id, promotion_id, order_id, user_id, discount_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		usage.ID, usage.PromotionID, usage.OrderID, usage.UserID,
		usage.DiscountAmount.String(), formatTime(usage.CreatedAt)); err != nil {
		return fmt.Errorf("failed to insert usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListUsage returns the usage rows of a promotion, oldest first.
func (db *DB) ListUsage(ctx context.Context, promotionID int64) ([]models.PromotionUsage, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, promotion_id, order_id, user_id, discount_amount, created_at
		FROM promotion_usages
		WHERE promotion_id = ?
		ORDER BY created_at, id`, promotionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usages: %w", err)
	}
	defer rows.Close()

	usages := []models.PromotionUsage{}
	for rows.Next() {
		var (
			u         models.PromotionUsage
			createdAt string
		)
		if err := rows.Scan(&u.ID, &u.PromotionID, &u.OrderID, &u.UserID, &u.DiscountAmount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		if u.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usages: %w", err)
	}

	return usages, nil
}
