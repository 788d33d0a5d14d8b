package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"promotion-engine/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func seedCatalog(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	products := []models.Product{
		{ID: "p-shirt", CategoryID: "apparel", BrandID: "acme", Active: true},
		{ID: "p-mug", CategoryID: "home", BrandID: "acme", Active: true},
		{ID: "p-old", CategoryID: "apparel", BrandID: "basic", Active: false},
	}
	for _, p := range products {
		if err := db.UpsertProduct(ctx, p); err != nil {
			t.Fatalf("Failed to upsert product: %v", err)
		}
	}
	variants := []models.Variant{
		{ID: "v-shirt-s", ProductID: "p-shirt", Price: dec("100.00"), Active: true},
		{ID: "v-shirt-m", ProductID: "p-shirt", Price: dec("19.99"), Active: true},
		{ID: "v-shirt-x", ProductID: "p-shirt", Price: dec("50.00"), Active: false},
		{ID: "v-mug", ProductID: "p-mug", Price: dec("12.50"), Active: true},
		{ID: "v-old", ProductID: "p-old", Price: dec("5.00"), Active: true},
	}
	for _, v := range variants {
		if err := db.UpsertVariant(ctx, v); err != nil {
			t.Fatalf("Failed to upsert variant: %v", err)
		}
	}
}

func tenPercentOff(original decimal.Decimal) decimal.Decimal {
	return original.Mul(dec("0.9")).Round(2)
}

func TestUpsertPromotion_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	code := "SAVE10"
	limit := 5
	minQty := 2
	starts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	promo := models.Promotion{
		Name:          models.LocalizedText{EN: "Save 10", AR: "وفر ١٠"},
		Code:          &code,
		DiscountType:  models.DiscountPercentage,
		Value:         decPtr("10"),
		MinOrderValue: decPtr("50.00"),
		UsageLimit:    &limit,
		Active:        true,
		StartsAt:      &starts,
		Conditions: []models.PromotionCondition{
			{Type: models.ConditionCategory, EntityID: "apparel", MinQuantity: &minQty},
		},
		Rewards: []models.PromotionReward{
			{Type: models.RewardProduct, EntityID: "p-mug", Quantity: 1, DiscountPercentage: dec("100")},
		},
	}

	id, err := db.UpsertPromotion(ctx, promo)
	if err != nil {
		t.Fatalf("Failed to upsert promotion: %v", err)
	}
	if id == 0 {
		t.Fatal("Expected an assigned promotion id")
	}

	got, err := db.FindPromotionByCode(ctx, "SAVE10")
	if err != nil {
		t.Fatalf("Failed to find promotion: %v", err)
	}
	if got.ID != id || got.Name.AR != "وفر ١٠" || !got.Value.Equal(dec("10")) {
		t.Errorf("Unexpected promotion: %+v", got)
	}
	if got.StartsAt == nil || !got.StartsAt.Equal(starts) || got.ExpiresAt != nil {
		t.Errorf("Unexpected window: %v - %v", got.StartsAt, got.ExpiresAt)
	}
	if len(got.Conditions) != 1 || got.Conditions[0].RequiredQuantity() != 2 {
		t.Errorf("Unexpected conditions: %+v", got.Conditions)
	}
	if len(got.Rewards) != 1 || !got.Rewards[0].DiscountPercentage.Equal(dec("100")) {
		t.Errorf("Unexpected rewards: %+v", got.Rewards)
	}

	if _, err := db.FindPromotionByCode(ctx, "save10"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a different-case code, got %v", err)
	}

	// Updates replace children but keep the usage counter.
	if err := db.RecordUsage(ctx, models.PromotionUsage{
		ID: uuid.New().String(), PromotionID: id, OrderID: "order-1", UserID: "u1",
		DiscountAmount: dec("5.00"), CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Failed to record usage: %v", err)
	}
	promo.ID = id
	promo.Conditions = nil
	if _, err := db.UpsertPromotion(ctx, promo); err != nil {
		t.Fatalf("Failed to update promotion: %v", err)
	}
	got, err = db.GetPromotion(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get promotion: %v", err)
	}
	if got.UsageCount != 1 {
		t.Errorf("Expected usage count 1 after update, got %d", got.UsageCount)
	}
	if len(got.Conditions) != 0 {
		t.Errorf("Expected conditions to be cleared, got %d", len(got.Conditions))
	}
}

func TestListAutomaticPromotions_FiltersCodeAndWindow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)
	code := "CODE"

	promotions := []models.Promotion{
		{Name: models.LocalizedText{EN: "open"}, DiscountType: models.DiscountFixed, Value: decPtr("5"), Active: true},
		{Name: models.LocalizedText{EN: "coded"}, Code: &code, DiscountType: models.DiscountFixed, Value: decPtr("5"), Active: true},
		{Name: models.LocalizedText{EN: "inactive"}, DiscountType: models.DiscountFixed, Value: decPtr("5"), Active: false},
		{Name: models.LocalizedText{EN: "future"}, DiscountType: models.DiscountFixed, Value: decPtr("5"), Active: true, StartsAt: &future},
		{Name: models.LocalizedText{EN: "expired"}, DiscountType: models.DiscountFixed, Value: decPtr("5"), Active: true, ExpiresAt: &past},
		{Name: models.LocalizedText{EN: "edge"}, DiscountType: models.DiscountFixed, Value: decPtr("5"), Active: true, StartsAt: &now, ExpiresAt: &now},
	}
	for _, p := range promotions {
		if _, err := db.UpsertPromotion(ctx, p); err != nil {
			t.Fatalf("Failed to upsert promotion: %v", err)
		}
	}

	got, err := db.ListAutomaticPromotions(ctx, now)
	if err != nil {
		t.Fatalf("Failed to list automatic promotions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 automatic promotions, got %d", len(got))
	}
	if got[0].Name.EN != "open" || got[1].Name.EN != "edge" {
		t.Errorf("Unexpected promotions: %s, %s", got[0].Name.EN, got[1].Name.EN)
	}

	coded, automatic, err := db.CountActivePromotions(ctx)
	if err != nil {
		t.Fatalf("Failed to count promotions: %v", err)
	}
	if coded != 1 || automatic != 4 {
		t.Errorf("Expected 1 coded and 4 automatic, got %d and %d", coded, automatic)
	}
}

func TestRecordUsage_LimitDuplicateAndMissing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	limit := 2
	id, err := db.UpsertPromotion(ctx, models.Promotion{
		Name: models.LocalizedText{EN: "limited"}, DiscountType: models.DiscountFixed,
		Value: decPtr("5"), UsageLimit: &limit, Active: true,
	})
	if err != nil {
		t.Fatalf("Failed to upsert promotion: %v", err)
	}

	usage := func(orderID string) models.PromotionUsage {
		return models.PromotionUsage{
			ID: uuid.New().String(), PromotionID: id, OrderID: orderID, UserID: "u1",
			DiscountAmount: dec("5.00"), CreatedAt: time.Now(),
		}
	}

	if err := db.RecordUsage(ctx, usage("o1")); err != nil {
		t.Fatalf("Failed to record first usage: %v", err)
	}
	if err := db.RecordUsage(ctx, usage("o1")); !errors.Is(err, ErrDuplicateUsage) {
		t.Errorf("Expected ErrDuplicateUsage, got %v", err)
	}
	if err := db.RecordUsage(ctx, usage("o2")); err != nil {
		t.Fatalf("Failed to record second usage: %v", err)
	}
	if err := db.RecordUsage(ctx, usage("o3")); !errors.Is(err, ErrLimitReached) {
		t.Errorf("Expected ErrLimitReached, got %v", err)
	}

	missing := usage("o4")
	missing.PromotionID = id + 100
	if err := db.RecordUsage(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	promo, err := db.GetPromotion(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get promotion: %v", err)
	}
	if promo.UsageCount != 2 {
		t.Errorf("Expected usage count 2, got %d", promo.UsageCount)
	}

	usages, err := db.ListUsage(ctx, id)
	if err != nil {
		t.Fatalf("Failed to list usage: %v", err)
	}
	if len(usages) != 2 {
		t.Errorf("Expected 2 usage rows, got %d", len(usages))
	}
}

func TestApplyPriceDiscount_CategoryScopeAndRevert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedCatalog(t, db)

	target := "apparel"
	id, err := db.UpsertDirectPromotion(ctx, models.DirectPromotion{
		Name: models.LocalizedText{EN: "Apparel sale"}, Type: models.DirectPriceDiscount,
		DiscountPercentage: decPtr("10"), Scope: models.ScopeCategory, TargetID: &target,
	})
	if err != nil {
		t.Fatalf("Failed to upsert direct promotion: %v", err)
	}

	result, err := db.ApplyPriceDiscount(ctx, PriceRewrite{
		PromotionID: id, Scope: models.ScopeCategory, TargetID: target, Reprice: tenPercentOff,
	})
	if err != nil {
		t.Fatalf("Failed to apply price discount: %v", err)
	}
	// Inactive variants and variants of inactive products are not targeted.
	if result.AppliedCount != 2 || result.RevertedCount != 0 {
		t.Errorf("Unexpected result: %+v", result)
	}

	shirt, err := db.GetVariant(ctx, "v-shirt-m")
	if err != nil {
		t.Fatalf("Failed to get variant: %v", err)
	}
	if shirt.Price.StringFixed(2) != "17.99" || shirt.OriginalPrice == nil || !shirt.OriginalPrice.Equal(dec("19.99")) {
		t.Errorf("Unexpected discounted variant: price=%s original=%v", shirt.Price, shirt.OriginalPrice)
	}
	mug, _ := db.GetVariant(ctx, "v-mug")
	if !mug.Price.Equal(dec("12.50")) || mug.OriginalPrice != nil {
		t.Errorf("Out-of-scope variant changed: %+v", mug)
	}

	stats, err := db.DirectPromotionStats(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	if stats.ActivePromotions != 1 || stats.PriceDiscountPromotions != 1 || stats.DiscountedVariants != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	reverted, err := db.RevertPriceDiscounts(ctx)
	if err != nil {
		t.Fatalf("Failed to revert: %v", err)
	}
	if reverted != 2 {
		t.Errorf("Expected 2 reverted variants, got %d", reverted)
	}
	shirt, _ = db.GetVariant(ctx, "v-shirt-m")
	if shirt.Price.String() != "19.99" || shirt.OriginalPrice != nil {
		t.Errorf("Revert did not restore the exact price: %+v", shirt)
	}

	dp, err := db.GetDirectPromotion(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get direct promotion: %v", err)
	}
	if dp.Active {
		t.Error("Expected the campaign to be inactive after revert")
	}

	reverted, err = db.RevertPriceDiscounts(ctx)
	if err != nil || reverted != 0 {
		t.Errorf("Expected a no-op second revert, got %d, %v", reverted, err)
	}
}

func TestApplyPriceDiscount_ReapplyDoesNotCompound(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedCatalog(t, db)

	id, err := db.UpsertDirectPromotion(ctx, models.DirectPromotion{
		Name: models.LocalizedText{EN: "Sitewide"}, Type: models.DirectPriceDiscount,
		DiscountPercentage: decPtr("10"), Scope: models.ScopeAllProducts,
	})
	if err != nil {
		t.Fatalf("Failed to upsert direct promotion: %v", err)
	}

	rw := PriceRewrite{PromotionID: id, Scope: models.ScopeAllProducts, Reprice: tenPercentOff}
	if _, err := db.ApplyPriceDiscount(ctx, rw); err != nil {
		t.Fatalf("Failed to apply: %v", err)
	}
	result, err := db.ApplyPriceDiscount(ctx, rw)
	if err != nil {
		t.Fatalf("Failed to re-apply: %v", err)
	}
	if result.AppliedCount != 3 || result.RevertedCount != 3 {
		t.Errorf("Unexpected result: %+v", result)
	}

	v, _ := db.GetVariant(ctx, "v-shirt-s")
	if v.Price.StringFixed(2) != "90.00" || !v.OriginalPrice.Equal(dec("100")) {
		t.Errorf("Price compounded: %+v", v)
	}
}

func TestApplyPriceDiscount_ReplacesActiveCampaign(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedCatalog(t, db)

	first, _ := db.UpsertDirectPromotion(ctx, models.DirectPromotion{
		Name: models.LocalizedText{EN: "first"}, Type: models.DirectPriceDiscount,
		DiscountPercentage: decPtr("10"), Scope: models.ScopeAllProducts,
	})
	brand := "acme"
	second, _ := db.UpsertDirectPromotion(ctx, models.DirectPromotion{
		Name: models.LocalizedText{EN: "second"}, Type: models.DirectPriceDiscount,
		DiscountPercentage: decPtr("50"), Scope: models.ScopeBrand, TargetID: &brand,
	})

	if _, err := db.ApplyPriceDiscount(ctx, PriceRewrite{PromotionID: first, Scope: models.ScopeAllProducts, Reprice: tenPercentOff}); err != nil {
		t.Fatalf("Failed to apply first: %v", err)
	}
	half := func(d decimal.Decimal) decimal.Decimal { return d.Div(dec("2")).Round(2) }
	if _, err := db.ApplyPriceDiscount(ctx, PriceRewrite{PromotionID: second, Scope: models.ScopeBrand, TargetID: brand, Reprice: half}); err != nil {
		t.Fatalf("Failed to apply second: %v", err)
	}

	firstPromo, _ := db.GetDirectPromotion(ctx, first)
	secondPromo, _ := db.GetDirectPromotion(ctx, second)
	if firstPromo.Active || !secondPromo.Active {
		t.Errorf("Expected only the second campaign active, got first=%v second=%v", firstPromo.Active, secondPromo.Active)
	}

	v, _ := db.GetVariant(ctx, "v-shirt-s")
	if v.Price.StringFixed(2) != "50.00" || !v.OriginalPrice.Equal(dec("100")) {
		t.Errorf("Expected 50%% off the original price, got %+v", v)
	}
}

func TestApplyPriceDiscount_UnknownPromotionRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedCatalog(t, db)

	_, err := db.ApplyPriceDiscount(ctx, PriceRewrite{PromotionID: 42, Scope: models.ScopeAllProducts, Reprice: tenPercentOff})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	v, _ := db.GetVariant(ctx, "v-shirt-s")
	if !v.Price.Equal(dec("100")) || v.OriginalPrice != nil {
		t.Errorf("Expected untouched price after rollback, got %+v", v)
	}
}

func TestLoadCartLines_SkipsInactiveRows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedCatalog(t, db)

	items := []models.CartItem{
		{UserID: "u1", ProductID: "p-shirt", VariantID: "v-shirt-s", Quantity: 2},
		{UserID: "u1", ProductID: "p-shirt", VariantID: "v-shirt-x", Quantity: 1},
		{UserID: "u1", ProductID: "p-old", VariantID: "v-old", Quantity: 1},
		{UserID: "u1", ProductID: "p-mug", VariantID: "v-mug", Quantity: 3},
		{UserID: "u2", ProductID: "p-mug", VariantID: "v-mug", Quantity: 1},
	}
	for _, item := range items {
		if err := db.SetCartItem(ctx, item); err != nil {
			t.Fatalf("Failed to set cart item: %v", err)
		}
	}

	lines, err := db.LoadCartLines(ctx, "u1")
	if err != nil {
		t.Fatalf("Failed to load cart: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0].VariantID != "v-shirt-s" || lines[0].CategoryID != "apparel" || !lines[0].UnitPrice.Equal(dec("100")) {
		t.Errorf("Unexpected first line: %+v", lines[0])
	}

	if err := db.SetCartItem(ctx, models.CartItem{UserID: "u1", ProductID: "p-mug", VariantID: "v-mug", Quantity: 0}); err != nil {
		t.Fatalf("Failed to remove cart item: %v", err)
	}
	lines, _ = db.LoadCartLines(ctx, "u1")
	if len(lines) != 1 {
		t.Errorf("Expected 1 line after removal, got %d", len(lines))
	}
}

func TestGetShippingArea_MalformedCostIsMissing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertShippingArea(ctx, models.ShippingArea{ID: "a1", Name: "City", Cost: decPtr("15.00")}); err != nil {
		t.Fatalf("Failed to upsert shipping area: %v", err)
	}
	if _, err := db.conn.Exec(`INSERT INTO shipping_areas (id, name, cost) VALUES ('a2', 'Broken', 'n/a')`); err != nil {
		t.Fatalf("Failed to insert malformed area: %v", err)
	}

	area, err := db.GetShippingArea(ctx, "a1")
	if err != nil {
		t.Fatalf("Failed to get shipping area: %v", err)
	}
	if area.Cost == nil || !area.Cost.Equal(dec("15")) {
		t.Errorf("Unexpected cost: %v", area.Cost)
	}

	broken, err := db.GetShippingArea(ctx, "a2")
	if err != nil {
		t.Fatalf("Failed to get malformed shipping area: %v", err)
	}
	if broken.Cost != nil {
		t.Errorf("Expected missing cost, got %v", broken.Cost)
	}

	if _, err := db.GetShippingArea(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRecordUsage_RollsBackWhenInsertFails(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = conn.Close() }()

	db := NewWithConn(conn)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM promotion_usages").
		WithArgs(int64(7), "order-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE promotions SET usage_count = usage_count \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO promotion_usages").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = db.RecordUsage(context.Background(), models.PromotionUsage{
		ID: "u-1", PromotionID: 7, OrderID: "order-1", UserID: "user-1",
		DiscountAmount: dec("3.00"), CreatedAt: time.Now(),
	})
	if err == nil {
		t.Fatal("Expected an error when the usage insert fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestApplyPriceDiscount_RollsBackWhenRepriceFails(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = conn.Close() }()

	db := NewWithConn(conn)

	mock.ExpectBegin()
	mock.ExpectExec("SET price = original_price, original_price = NULL").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE direct_promotions SET active = 0").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM product_variants v").
		WillReturnRows(sqlmock.NewRows([]string{"id", "price", "original_price"}).
			AddRow("v1", "100.00", nil).
			AddRow("v2", "20.00", nil))
	prep := mock.ExpectPrepare("UPDATE product_variants SET original_price")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, err = db.ApplyPriceDiscount(context.Background(), PriceRewrite{
		PromotionID: 1, Scope: models.ScopeAllProducts, Reprice: tenPercentOff,
	})
	if err == nil {
		t.Fatal("Expected an error when repricing fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func rawPrice(t *testing.T, db *DB, id string) string {
	t.Helper()
	var price string
	if err := db.conn.QueryRow(`SELECT price FROM product_variants WHERE id = ?`, id).Scan(&price); err != nil {
		t.Fatalf("Failed to read price of %s: %v", id, err)
	}
	return price
}

func TestApplyPriceDiscount_RevertRestoresStoredText(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Catalog rows written by another system keep their own formatting.
	for _, q := range []string{
		`INSERT INTO products (id, category_id, brand_id, active) VALUES ('p', 'c', 'b', 1)`,
		`INSERT INTO product_variants (id, product_id, price, active) VALUES ('v', 'p', '100.00', 1)`,
		`INSERT INTO product_variants (id, product_id, price, active) VALUES ('w', 'p', '19.90', 1)`,
	} {
		if _, err := db.conn.Exec(q); err != nil {
			t.Fatalf("Failed to seed catalog: %v", err)
		}
	}

	id, err := db.UpsertDirectPromotion(ctx, models.DirectPromotion{
		Name: models.LocalizedText{EN: "Everything"}, Type: models.DirectPriceDiscount,
		DiscountPercentage: decPtr("10"), Scope: models.ScopeAllProducts,
	})
	if err != nil {
		t.Fatalf("Failed to upsert direct promotion: %v", err)
	}

	if _, err := db.ApplyPriceDiscount(ctx, PriceRewrite{
		PromotionID: id, Scope: models.ScopeAllProducts, Reprice: tenPercentOff,
	}); err != nil {
		t.Fatalf("Failed to apply price discount: %v", err)
	}
	if got := rawPrice(t, db, "v"); got != "90" {
		t.Errorf("Expected discounted price 90, got %q", got)
	}

	if _, err := db.RevertPriceDiscounts(ctx); err != nil {
		t.Fatalf("Failed to revert: %v", err)
	}
	if got := rawPrice(t, db, "v"); got != "100.00" {
		t.Errorf("Expected stored price %q after revert, got %q", "100.00", got)
	}
	if got := rawPrice(t, db, "w"); got != "19.90" {
		t.Errorf("Expected stored price %q after revert, got %q", "19.90", got)
	}
}

func TestUpsertPromotion_LimitBelowRecordedUsage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	limit := 10
	promo := models.Promotion{
		Name: models.LocalizedText{EN: "Limited"}, DiscountType: models.DiscountFixed,
		Value: decPtr("5"), UsageLimit: &limit, Active: true,
	}
	id, err := db.UpsertPromotion(ctx, promo)
	if err != nil {
		t.Fatalf("Failed to insert promotion: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := db.RecordUsage(ctx, models.PromotionUsage{
			ID: uuid.New().String(), PromotionID: id, OrderID: uuid.New().String(),
			UserID: "u", DiscountAmount: dec("5"), CreatedAt: time.Now(),
		}); err != nil {
			t.Fatalf("Failed to record usage: %v", err)
		}
	}

	promo.ID = id
	lower := 3
	promo.UsageLimit = &lower
	if _, err := db.UpsertPromotion(ctx, promo); !errors.Is(err, ErrLimitBelowUsage) {
		t.Fatalf("Expected ErrLimitBelowUsage, got %v", err)
	}

	// Closing the promotion at its current usage is allowed.
	exact := 5
	promo.UsageLimit = &exact
	if _, err := db.UpsertPromotion(ctx, promo); err != nil {
		t.Fatalf("Failed to lower limit to the usage count: %v", err)
	}
	saved, err := db.GetPromotion(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get promotion: %v", err)
	}
	if saved.UsageCount != 5 || saved.UsageLimit == nil || *saved.UsageLimit != 5 {
		t.Errorf("Unexpected usage state: count=%d limit=%v", saved.UsageCount, saved.UsageLimit)
	}
}

func TestListAutomaticPromotions_SubSecondWindow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	expires := time.Date(2025, 6, 1, 12, 0, 0, 900_000_000, time.UTC)
	id, err := db.UpsertPromotion(ctx, models.Promotion{
		Name: models.LocalizedText{EN: "Flash"}, DiscountType: models.DiscountFixed,
		Value: decPtr("1"), Active: true, ExpiresAt: &expires,
	})
	if err != nil {
		t.Fatalf("Failed to insert promotion: %v", err)
	}

	saved, err := db.GetPromotion(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get promotion: %v", err)
	}
	if saved.ExpiresAt == nil || !saved.ExpiresAt.Equal(expires) {
		t.Errorf("Expected expiry %s, got %v", expires, saved.ExpiresAt)
	}

	live, err := db.ListAutomaticPromotions(ctx, expires.Add(-400*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to list promotions: %v", err)
	}
	if len(live) != 1 {
		t.Errorf("Expected the promotion to be live before its expiry, got %d", len(live))
	}

	live, err = db.ListAutomaticPromotions(ctx, expires.Add(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to list promotions: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("Expected the promotion to be expired, got %d", len(live))
	}
}

func TestUpsertDirectPromotion_RefusesActiveRow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedCatalog(t, db)

	campaign := models.DirectPromotion{
		Name: models.LocalizedText{EN: "All"}, Type: models.DirectPriceDiscount,
		DiscountPercentage: decPtr("10"), Scope: models.ScopeAllProducts,
	}
	id, err := db.UpsertDirectPromotion(ctx, campaign)
	if err != nil {
		t.Fatalf("Failed to upsert direct promotion: %v", err)
	}
	if _, err := db.ApplyPriceDiscount(ctx, PriceRewrite{
		PromotionID: id, Scope: models.ScopeAllProducts, Reprice: tenPercentOff,
	}); err != nil {
		t.Fatalf("Failed to apply price discount: %v", err)
	}

	campaign.ID = id
	campaign.DiscountPercentage = decPtr("50")
	if _, err := db.UpsertDirectPromotion(ctx, campaign); !errors.Is(err, ErrDirectPromotionActive) {
		t.Fatalf("Expected ErrDirectPromotionActive, got %v", err)
	}
	stored, err := db.GetDirectPromotion(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get direct promotion: %v", err)
	}
	if !stored.DiscountPercentage.Equal(dec("10")) {
		t.Errorf("Active campaign was rewritten: %s", stored.DiscountPercentage)
	}

	if _, err := db.RevertPriceDiscounts(ctx); err != nil {
		t.Fatalf("Failed to revert: %v", err)
	}
	if _, err := db.UpsertDirectPromotion(ctx, campaign); err != nil {
		t.Fatalf("Failed to edit inactive campaign: %v", err)
	}
}
