package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("database: record not found")
	// ErrLimitReached is returned when a usage increment would exceed the limit.
	ErrLimitReached = errors.New("database: usage limit reached")
	// ErrDuplicateUsage is returned when an order already redeemed a promotion.
	ErrDuplicateUsage = errors.New("database: usage already recorded")
	// ErrLimitBelowUsage is returned when a new usage limit is below the
	// number of redemptions already recorded.
	ErrLimitBelowUsage = errors.New("database: usage limit below recorded usage")
	// ErrDirectPromotionActive is returned when an active direct promotion
	// would be rewritten.
	ErrDirectPromotionActive = errors.New("database: direct promotion is active")
)

// Options tunes the SQLite connection.
type Options struct {
	// BusyTimeout is how long a writer waits for the database lock.
	BusyTimeout time.Duration
}

// DefaultOptions returns the connection defaults.
func DefaultOptions() Options {
	return Options{BusyTimeout: 5 * time.Second}
}

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	return NewDBWithOptions(dbPath, DefaultOptions())
}

// NewDBWithOptions opens dbPath with the given options and initializes the schema.
// Transactions begin IMMEDIATE so the first statement of every write
// transaction already holds SQLite's reserved lock.
func NewDBWithOptions(dbPath string, opts Options) (*DB, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=1&_busy_timeout=%d&_txlock=immediate",
		dbPath, opts.BusyTimeout.Milliseconds())
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one pooled connection keeps in-process
	// callers queued in database/sql instead of failing with SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	db := NewWithConn(conn)

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// NewWithConn wraps an already-open connection without touching the schema.
func NewWithConn(conn *sql.DB) *DB {
	return &DB{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS promotions (
			id INTEGER PRIMARY KEY,
			name_en TEXT NOT NULL,
			name_ar TEXT NOT NULL DEFAULT '',
			description_en TEXT NOT NULL DEFAULT '',
			description_ar TEXT NOT NULL DEFAULT '',
			code TEXT UNIQUE,
			discount_type TEXT NOT NULL,
			value TEXT,
			min_order_value TEXT,
			usage_limit INTEGER,
			usage_count INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL,
			starts_at TEXT,
			expires_at TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (usage_limit IS NULL OR usage_count <= usage_limit)
		)`,
		`CREATE TABLE IF NOT EXISTS promotion_conditions (
			id INTEGER PRIMARY KEY,
			promotion_id INTEGER NOT NULL REFERENCES promotions(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			min_quantity INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS promotion_rewards (
			id INTEGER PRIMARY KEY,
			promotion_id INTEGER NOT NULL REFERENCES promotions(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			discount_percentage TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS promotion_usages (
			id TEXT PRIMARY KEY,
			promotion_id INTEGER NOT NULL REFERENCES promotions(id),
			order_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			discount_amount TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (promotion_id, order_id)
		)`,
		`CREATE TABLE IF NOT EXISTS direct_promotions (
			id INTEGER PRIMARY KEY,
			name_en TEXT NOT NULL,
			name_ar TEXT NOT NULL DEFAULT '',
			description_en TEXT NOT NULL DEFAULT '',
			description_ar TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			discount_percentage TEXT,
			scope TEXT,
			target_id TEXT,
			min_order_amount TEXT,
			active INTEGER NOT NULL DEFAULT 0,
			starts_at TEXT,
			expires_at TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			category_id TEXT NOT NULL DEFAULT '',
			brand_id TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS product_variants (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL REFERENCES products(id),
			price TEXT NOT NULL,
			original_price TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS shipping_areas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			cost TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			user_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			variant_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			PRIMARY KEY (user_id, variant_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_single_active_price_discount
			ON direct_promotions(type) WHERE active = 1 AND type = 'PRICE_DISCOUNT'`,
		`CREATE INDEX IF NOT EXISTS idx_promotions_automatic ON promotions(active) WHERE code IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_conditions_promotion ON promotion_conditions(promotion_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rewards_promotion ON promotion_rewards(promotion_id)`,
		`CREATE INDEX IF NOT EXISTS idx_usages_promotion ON promotion_usages(promotion_id)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand_id)`,
		`CREATE INDEX IF NOT EXISTS idx_variants_product ON product_variants(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_variants_discounted ON product_variants(id) WHERE original_price IS NOT NULL`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// timeLayout is RFC3339 with a fixed-width nanosecond fraction, so stored
// values keep full precision and still sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s, field string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString, field string) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String, field)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullableInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}
