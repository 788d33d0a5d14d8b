package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a promotion's discount amount is computed.
type DiscountType string

const (
	DiscountPercentage   DiscountType = "PERCENTAGE"
	DiscountFixed        DiscountType = "FIXED"
	DiscountFreeShipping DiscountType = "FREE_SHIPPING"
	DiscountBuyXGetY     DiscountType = "BUY_X_GET_Y"
)

// Valid reports whether t is one of the known discount types.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercentage, DiscountFixed, DiscountFreeShipping, DiscountBuyXGetY:
		return true
	}
	return false
}

// ConditionType identifies what a promotion condition is matched against.
type ConditionType string

const (
	ConditionProduct  ConditionType = "PRODUCT"
	ConditionCategory ConditionType = "CATEGORY"
	ConditionBrand    ConditionType = "BRAND"
	ConditionCustomer ConditionType = "CUSTOMER"
)

// Valid reports whether t is one of the known condition types.
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionProduct, ConditionCategory, ConditionBrand, ConditionCustomer:
		return true
	}
	return false
}

// RewardType identifies which cart lines a BUY_X_GET_Y reward discounts.
type RewardType string

const (
	RewardProduct  RewardType = "PRODUCT"
	RewardCategory RewardType = "CATEGORY"
	RewardBrand    RewardType = "BRAND"
)

// Valid reports whether t is one of the known reward types.
func (t RewardType) Valid() bool {
	switch t {
	case RewardProduct, RewardCategory, RewardBrand:
		return true
	}
	return false
}

// LocalizedText holds the English and Arabic variants of a display string.
type LocalizedText struct {
	EN string `json:"en"`
	AR string `json:"ar"`
}

// Promotion is a discount rule, optionally gated by a redemption code,
// conditions and a usage limit.
type Promotion struct {
	ID            int64                `json:"id"`
	Name          LocalizedText        `json:"name"`
	Description   LocalizedText        `json:"description"`
	Code          *string              `json:"code,omitempty"` // nil for automatic promotions
	DiscountType  DiscountType         `json:"discount_type"`
	Value         *decimal.Decimal     `json:"value,omitempty"` // unused for FREE_SHIPPING and BUY_X_GET_Y
	MinOrderValue *decimal.Decimal     `json:"min_order_value,omitempty"`
	UsageLimit    *int                 `json:"usage_limit,omitempty"` // nil means unlimited
	UsageCount    int                  `json:"usage_count"`
	Active        bool                 `json:"active"`
	StartsAt      *time.Time           `json:"starts_at,omitempty"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	Conditions    []PromotionCondition `json:"conditions"`
	Rewards       []PromotionReward    `json:"rewards"`
}

// IsAutomatic reports whether the promotion applies without a code.
func (p Promotion) IsAutomatic() bool {
	return p.Code == nil
}

// InWindow reports whether now falls inside [StartsAt, ExpiresAt].
// Missing bounds are open.
func (p Promotion) InWindow(now time.Time) bool {
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return false
	}
	return true
}

// HasCapacity reports whether another redemption fits under the usage limit.
func (p Promotion) HasCapacity() bool {
	return p.UsageLimit == nil || p.UsageCount < *p.UsageLimit
}

// PromotionCondition is a prerequisite a cart must satisfy.
type PromotionCondition struct {
	ID          int64         `json:"id,omitempty"`
	PromotionID int64         `json:"promotion_id,omitempty"`
	Type        ConditionType `json:"type"`
	EntityID    string        `json:"entity_id"`
	MinQuantity *int          `json:"min_quantity,omitempty"` // defaults to 1; ignored for CUSTOMER
}

// RequiredQuantity returns the minimum matching quantity, defaulting to 1.
func (c PromotionCondition) RequiredQuantity() int {
	if c.MinQuantity == nil || *c.MinQuantity < 1 {
		return 1
	}
	return *c.MinQuantity
}

// PromotionReward names the items a BUY_X_GET_Y promotion discounts.
type PromotionReward struct {
	ID                 int64           `json:"id,omitempty"`
	PromotionID        int64           `json:"promotion_id,omitempty"`
	Type               RewardType      `json:"type"`
	EntityID           string          `json:"entity_id"`
	Quantity           int             `json:"quantity"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"` // 100 = free
}

// PromotionUsage records one successful redemption. Rows are never updated.
type PromotionUsage struct {
	ID             string          `json:"id"`
	PromotionID    int64           `json:"promotion_id"`
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}
