package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"promotion-engine/internal/models"
)

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds to cents, half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CalculateReward computes the discount for an already-eligible promotion.
// shippingCost is only read for FREE_SHIPPING promotions. Rounding happens
// once, on the final amount.
func CalculateReward(promo models.Promotion, cart models.CartSnapshot, shippingCost decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch promo.DiscountType {
	case models.DiscountPercentage:
		amount = percentageOf(cart.Subtotal, valueOf(promo))
		amount = clamp(amount, cart.Subtotal)
	case models.DiscountFixed:
		amount = clamp(valueOf(promo), cart.Subtotal)
	case models.DiscountFreeShipping:
		amount = shippingCost
	case models.DiscountBuyXGetY:
		amount = buyXGetY(promo.Rewards, cart)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return RoundMoney(amount)
}

func valueOf(promo models.Promotion) decimal.Decimal {
	if promo.Value == nil {
		return decimal.Zero
	}
	return *promo.Value
}

func percentageOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}

// clamp bounds amount to [0, ceiling].
func clamp(amount, ceiling decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if ceiling.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, ceiling)
}

// buyXGetY discounts up to reward.Quantity matching units per reward,
// cheapest units first, and caps the sum at the value of the lines any
// reward matched.
func buyXGetY(rewards []models.PromotionReward, cart models.CartSnapshot) decimal.Decimal {
	total := decimal.Zero
	eligibleValue := decimal.Zero
	counted := make(map[int]bool)

	for _, reward := range rewards {
		if reward.Quantity <= 0 || reward.DiscountPercentage.IsNegative() {
			continue
		}
		indexes := rewardLineIndexes(reward, cart.Lines)
		sort.SliceStable(indexes, func(i, j int) bool {
			return cart.Lines[indexes[i]].UnitPrice.LessThan(cart.Lines[indexes[j]].UnitPrice)
		})

		remaining := reward.Quantity
		for _, idx := range indexes {
			line := cart.Lines[idx]
			if !counted[idx] {
				eligibleValue = eligibleValue.Add(line.LineSubtotal)
				counted[idx] = true
			}
			if remaining == 0 {
				continue
			}
			units := min(remaining, line.Quantity)
			remaining -= units
			lineDiscount := line.UnitPrice.Mul(decimal.NewFromInt(int64(units)))
			total = total.Add(percentageOf(lineDiscount, reward.DiscountPercentage))
		}
	}
	return clamp(total, eligibleValue)
}

func rewardLineIndexes(reward models.PromotionReward, lines []models.CartLine) []int {
	var key func(models.CartLine) string
	switch reward.Type {
	case models.RewardProduct:
		key = productOf
	case models.RewardCategory:
		key = categoryOf
	case models.RewardBrand:
		key = brandOf
	default:
		return nil
	}
	if reward.EntityID == "" {
		return nil
	}
	var out []int
	for i, line := range lines {
		if key(line) == reward.EntityID && line.Quantity > 0 {
			out = append(out, i)
		}
	}
	return out
}

// DiscountedPrice returns original reduced by percent, rounded to cents.
// Used for direct price discounts, which always start from the stored
// original so repeated application never compounds.
func DiscountedPrice(original, percent decimal.Decimal) decimal.Decimal {
	price := original.Sub(percentageOf(original, percent))
	if price.IsNegative() {
		return decimal.Zero
	}
	return RoundMoney(price)
}
