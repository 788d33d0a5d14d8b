// Package pricing evaluates promotions against cart snapshots. Everything in
// this package is a pure function of its inputs.
package pricing

import (
	"promotion-engine/internal/models"
)

// MatchResult describes how a cart satisfied a promotion's conditions.
type MatchResult struct {
	Eligible bool
	// Failed is the first condition the cart did not satisfy.
	Failed *models.PromotionCondition
	// Matched maps condition index to the cart lines that counted toward it.
	Matched map[int][]models.CartLine
}

// MatchConditions checks every condition against the cart (logical AND).
// A promotion without conditions is always eligible. CUSTOMER conditions are
// matched against the snapshot's user id.
func MatchConditions(conditions []models.PromotionCondition, cart models.CartSnapshot) MatchResult {
	result := MatchResult{
		Eligible: true,
		Matched:  make(map[int][]models.CartLine, len(conditions)),
	}
	for i, cond := range conditions {
		ok, lines := matchCondition(cond, cart)
		if !ok {
			failed := cond
			result.Eligible = false
			result.Failed = &failed
			return result
		}
		result.Matched[i] = lines
	}
	return result
}

func matchCondition(cond models.PromotionCondition, cart models.CartSnapshot) (bool, []models.CartLine) {
	switch cond.Type {
	case models.ConditionCustomer:
		return cart.UserID != "" && cart.UserID == cond.EntityID, nil
	case models.ConditionProduct:
		return matchQuantity(cond, cart, productOf)
	case models.ConditionCategory:
		return matchQuantity(cond, cart, categoryOf)
	case models.ConditionBrand:
		return matchQuantity(cond, cart, brandOf)
	default:
		return false, nil
	}
}

func matchQuantity(cond models.PromotionCondition, cart models.CartSnapshot, key func(models.CartLine) string) (bool, []models.CartLine) {
	lines := selectLines(cart.Lines, cond.EntityID, key)
	quantity := 0
	for _, line := range lines {
		quantity += line.Quantity
	}
	return quantity >= cond.RequiredQuantity(), lines
}

func selectLines(lines []models.CartLine, entityID string, key func(models.CartLine) string) []models.CartLine {
	if entityID == "" {
		return nil
	}
	var out []models.CartLine
	for _, line := range lines {
		if key(line) == entityID {
			out = append(out, line)
		}
	}
	return out
}

func productOf(line models.CartLine) string  { return line.ProductID }
func categoryOf(line models.CartLine) string { return line.CategoryID }
func brandOf(line models.CartLine) string    { return line.BrandID }
