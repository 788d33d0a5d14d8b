package models

import (
	"github.com/shopspring/decimal"
)

// DataIntegrityWarning flags collaborator data that was missing or malformed
// but did not block pricing.
type DataIntegrityWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes surfaced on quotes.
const (
	WarningMissingShippingArea = "missing_shipping_area"
	WarningMissingShippingCost = "missing_shipping_cost"
)

// OrderTotal is the priced breakdown of an order quote.
type OrderTotal struct {
	Subtotal         decimal.Decimal        `json:"subtotal"`
	ShippingCost     decimal.Decimal        `json:"shipping_cost"`
	Discount         decimal.Decimal        `json:"discount"`
	Total            decimal.Decimal        `json:"total"`
	Promotion        *Promotion             `json:"promotion,omitempty"`
	ShippingWaivedBy string                 `json:"shipping_waived_by,omitempty"` // "promotion" or "direct_promotion"
	Warnings         []DataIntegrityWarning `json:"warnings,omitempty"`
}

// PromotionDiscount pairs a discount amount with the promotion producing it.
type PromotionDiscount struct {
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Promotion      Promotion       `json:"promotion"`
}

// QuoteRequest is the request body for pricing the current user's cart.
type QuoteRequest struct {
	UserID         string  `json:"user_id"`
	ShippingAreaID string  `json:"shipping_area_id"`
	PromotionCode  *string `json:"promotion_code,omitempty"`
}

// ValidateCodeRequest is the request body for checking a promotion code.
type ValidateCodeRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// AutomaticPromotionRequest is the request body for the best automatic offer.
type AutomaticPromotionRequest struct {
	UserID string `json:"user_id"`
}

// AutomaticPromotionResponse wraps an optional best automatic offer.
type AutomaticPromotionResponse struct {
	Offer *PromotionDiscount `json:"offer"`
}

// RedeemRequest records a redemption for an already-placed order.
type RedeemRequest struct {
	PromotionID    int64           `json:"promotion_id"`
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// CodeCheckResponse is the administrative view of a code validation.
type CodeCheckResponse struct {
	Applicable      bool                `json:"applicable"`
	Kind            string              `json:"kind,omitempty"`   // invalid_code or not_eligible
	Reason          string              `json:"reason,omitempty"` // not-eligible reason
	FailedCondition *PromotionCondition `json:"failed_condition,omitempty"`
	DiscountAmount  *decimal.Decimal    `json:"discount_amount,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
