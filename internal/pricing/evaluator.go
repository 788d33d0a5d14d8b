package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"promotion-engine/internal/models"
)

// NotEligibleReason explains why a promotion did not apply.
type NotEligibleReason string

const (
	ReasonInactive          NotEligibleReason = "inactive"
	ReasonNotStarted        NotEligibleReason = "not_started"
	ReasonExpired           NotEligibleReason = "expired"
	ReasonUsageLimitReached NotEligibleReason = "usage_limit_reached"
	ReasonMinOrderValue     NotEligibleReason = "min_order_value"
	ReasonConditionsNotMet  NotEligibleReason = "conditions_not_met"
	ReasonUnsupportedType   NotEligibleReason = "unsupported_discount_type"
)

// Evaluation is the outcome of checking one promotion against one cart.
// A non-applicable evaluation is a normal result, not an error.
type Evaluation struct {
	Applicable bool
	Reason     NotEligibleReason
	// FailedCondition is set when Reason is ReasonConditionsNotMet.
	FailedCondition *models.PromotionCondition
	Discount        decimal.Decimal
	Promotion       models.Promotion
}

// Evaluator runs the promotion checks against a fixed clock.
type Evaluator struct {
	now func() time.Time
}

// NewEvaluator returns an evaluator. A nil clock means time.Now.
func NewEvaluator(now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{now: func() time.Time { return now().UTC() }}
}

// Evaluate validates, in order: active flag, time window, usage limit,
// minimum order value and conditions, stopping at the first failure. On
// success the reward is computed.
func (e *Evaluator) Evaluate(promo models.Promotion, cart models.CartSnapshot, shippingCost decimal.Decimal) Evaluation {
	result := Evaluation{Promotion: promo, Discount: decimal.Zero}

	if !promo.Active {
		result.Reason = ReasonInactive
		return result
	}
	if now := e.now(); !promo.InWindow(now) {
		result.Reason = ReasonExpired
		if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
			result.Reason = ReasonNotStarted
		}
		return result
	}
	if !promo.HasCapacity() {
		result.Reason = ReasonUsageLimitReached
		return result
	}
	if promo.MinOrderValue != nil && cart.Subtotal.LessThan(*promo.MinOrderValue) {
		result.Reason = ReasonMinOrderValue
		return result
	}
	if !promo.DiscountType.Valid() {
		result.Reason = ReasonUnsupportedType
		return result
	}
	if match := MatchConditions(promo.Conditions, cart); !match.Eligible {
		result.Reason = ReasonConditionsNotMet
		result.FailedCondition = match.Failed
		return result
	}

	result.Applicable = true
	result.Discount = CalculateReward(promo, cart, shippingCost)
	return result
}
