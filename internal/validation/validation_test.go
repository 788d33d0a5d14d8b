package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"promotion-engine/internal/models"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func validPromotion() models.Promotion {
	return models.Promotion{
		Name:         models.LocalizedText{EN: "Summer"},
		Code:         strPtr("SUMMER-25"),
		DiscountType: models.DiscountPercentage,
		Value:        decPtr("25"),
		Active:       true,
	}
}

func TestValidatePromotion(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)

	tests := []struct {
		name      string
		mutate    func(*models.Promotion)
		wantField string
	}{
		{"valid", func(p *models.Promotion) {}, ""},
		{"missing name", func(p *models.Promotion) { p.Name.EN = "  " }, "name.en"},
		{"blank code", func(p *models.Promotion) { p.Code = strPtr(" ") }, "code"},
		{"code with spaces", func(p *models.Promotion) { p.Code = strPtr("SAVE 10") }, "code"},
		{"unknown type", func(p *models.Promotion) { p.DiscountType = "BOGO" }, "discount_type"},
		{"percentage over 100", func(p *models.Promotion) { p.Value = decPtr("100.01") }, "value"},
		{"percentage missing", func(p *models.Promotion) { p.Value = nil }, "value"},
		{"fixed zero", func(p *models.Promotion) {
			p.DiscountType = models.DiscountFixed
			p.Value = decPtr("0")
		}, "value"},
		{"free shipping without value", func(p *models.Promotion) {
			p.DiscountType = models.DiscountFreeShipping
			p.Value = nil
		}, ""},
		{"buy x get y without rewards", func(p *models.Promotion) { p.DiscountType = models.DiscountBuyXGetY }, "rewards"},
		{"negative min order", func(p *models.Promotion) { p.MinOrderValue = decPtr("-1") }, "min_order_value"},
		{"negative usage limit", func(p *models.Promotion) { p.UsageLimit = intPtr(-1) }, "usage_limit"},
		{"zero usage limit", func(p *models.Promotion) { p.UsageLimit = intPtr(0) }, ""},
		{"window inverted", func(p *models.Promotion) {
			p.StartsAt = &start
			p.ExpiresAt = &before
		}, "expires_at"},
		{"bad condition type", func(p *models.Promotion) {
			p.Conditions = []models.PromotionCondition{{Type: "SKU", EntityID: "x"}}
		}, "conditions[0].type"},
		{"zero min quantity", func(p *models.Promotion) {
			p.Conditions = []models.PromotionCondition{{Type: models.ConditionProduct, EntityID: "p1", MinQuantity: intPtr(0)}}
		}, "conditions[0].min_quantity"},
		{"reward percentage zero", func(p *models.Promotion) {
			p.Rewards = []models.PromotionReward{{Type: models.RewardProduct, EntityID: "p1", Quantity: 1}}
		}, "rewards[0].discount_percentage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPromotion()
			tt.mutate(&p)
			err := ValidatePromotion(p)
			assertField(t, err, tt.wantField)
		})
	}
}

func TestValidateDirectPromotion(t *testing.T) {
	base := func() models.DirectPromotion {
		return models.DirectPromotion{
			Name:               models.LocalizedText{EN: "Sale"},
			Type:               models.DirectPriceDiscount,
			DiscountPercentage: decPtr("20"),
			Scope:              models.ScopeAllProducts,
		}
	}

	tests := []struct {
		name      string
		mutate    func(*models.DirectPromotion)
		wantField string
	}{
		{"valid", func(d *models.DirectPromotion) {}, ""},
		{"unknown type", func(d *models.DirectPromotion) { d.Type = "BANNER" }, "type"},
		{"missing percentage", func(d *models.DirectPromotion) { d.DiscountPercentage = nil }, "discount_percentage"},
		{"unknown scope", func(d *models.DirectPromotion) { d.Scope = "STORE" }, "scope"},
		{"category without target", func(d *models.DirectPromotion) { d.Scope = models.ScopeCategory }, "target_id"},
		{"brand with target", func(d *models.DirectPromotion) {
			d.Scope = models.ScopeBrand
			d.TargetID = strPtr("acme")
		}, ""},
		{"free shipping", func(d *models.DirectPromotion) {
			d.Type = models.DirectFreeShipping
			d.DiscountPercentage = nil
			d.Scope = ""
			d.MinOrderAmount = decPtr("200")
		}, ""},
		{"free shipping negative minimum", func(d *models.DirectPromotion) {
			d.Type = models.DirectFreeShipping
			d.MinOrderAmount = decPtr("-5")
		}, "min_order_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(&d)
			assertField(t, ValidateDirectPromotion(d), tt.wantField)
		})
	}
}

func TestValidateRedeemRequest(t *testing.T) {
	req := models.RedeemRequest{PromotionID: 1, OrderID: "o1", UserID: "u1", DiscountAmount: decimal.RequireFromString("5")}
	assertField(t, ValidateRedeemRequest(req), "")

	req.DiscountAmount = decimal.RequireFromString("-0.01")
	assertField(t, ValidateRedeemRequest(req), "discount_amount")

	req.DiscountAmount = decimal.Zero
	req.OrderID = ""
	assertField(t, ValidateRedeemRequest(req), "order_id")
}

func TestValidateQuoteRequest(t *testing.T) {
	req := models.QuoteRequest{UserID: "u1", ShippingAreaID: "a1"}
	assertField(t, ValidateQuoteRequest(req), "")

	req.PromotionCode = strPtr("  ")
	assertField(t, ValidateQuoteRequest(req), "promotion_code")

	req.PromotionCode = nil
	req.ShippingAreaID = "\x00"
	assertField(t, ValidateQuoteRequest(req), "shipping_area_id")
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  ab\x00c\t "); got != "abc" {
		t.Errorf("Expected %q, got %q", "abc", got)
	}
}

func assertField(t *testing.T, err error, wantField string) {
	t.Helper()
	if wantField == "" {
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		return
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected ValidationError on %s, got %v", wantField, err)
	}
	if vErr.Field != wantField {
		t.Errorf("Expected field %s, got %s (%s)", wantField, vErr.Field, vErr.Message)
	}
}
