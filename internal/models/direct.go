package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DirectPromotionType distinguishes price-rewriting campaigns from
// store-wide free shipping.
type DirectPromotionType string

const (
	DirectPriceDiscount DirectPromotionType = "PRICE_DISCOUNT"
	DirectFreeShipping  DirectPromotionType = "FREE_SHIPPING"
)

// Valid reports whether t is a known direct promotion type.
func (t DirectPromotionType) Valid() bool {
	return t == DirectPriceDiscount || t == DirectFreeShipping
}

// DiscountScope selects the variants a price discount rewrites.
type DiscountScope string

const (
	ScopeAllProducts DiscountScope = "ALL_PRODUCTS"
	ScopeCategory    DiscountScope = "CATEGORY"
	ScopeBrand       DiscountScope = "BRAND"
)

// Valid reports whether s is a known scope.
func (s DiscountScope) Valid() bool {
	switch s {
	case ScopeAllProducts, ScopeCategory, ScopeBrand:
		return true
	}
	return false
}

// DirectPromotion is a store-wide campaign. PRICE_DISCOUNT campaigns mutate
// stored variant prices; FREE_SHIPPING campaigns waive shipping above a
// minimum order amount.
type DirectPromotion struct {
	ID                 int64               `json:"id"`
	Name               LocalizedText       `json:"name"`
	Description        LocalizedText       `json:"description"`
	Type               DirectPromotionType `json:"type"`
	DiscountPercentage *decimal.Decimal    `json:"discount_percentage,omitempty"`
	Scope              DiscountScope       `json:"scope,omitempty"`
	TargetID           *string             `json:"target_id,omitempty"` // category or brand id
	MinOrderAmount     *decimal.Decimal    `json:"min_order_amount,omitempty"`
	Active             bool                `json:"active"`
	StartsAt           *time.Time          `json:"starts_at,omitempty"`
	ExpiresAt          *time.Time          `json:"expires_at,omitempty"`
}

// InWindow reports whether now falls inside the campaign window.
func (d DirectPromotion) InWindow(now time.Time) bool {
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
		return false
	}
	return true
}

// PromotionStats is a read-only projection over direct promotions.
type PromotionStats struct {
	ActivePromotions          int `json:"active_promotions"`
	PriceDiscountPromotions   int `json:"price_discount_promotions"`
	FreeShippingPromotions    int `json:"free_shipping_promotions"`
	DiscountedVariants        int `json:"discounted_variants"`
	ActiveCodePromotions      int `json:"active_code_promotions"`
	ActiveAutomaticPromotions int `json:"active_automatic_promotions"`
}

// ApplyResult reports what a price discount activation touched.
type ApplyResult struct {
	AppliedCount  int `json:"applied_count"`
	RevertedCount int `json:"reverted_count"` // variants restored from a previously active campaign
}

// RevertResult reports how many variants a revert restored.
type RevertResult struct {
	RevertedCount int `json:"reverted_count"`
}
