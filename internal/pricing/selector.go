package pricing

import (
	"github.com/shopspring/decimal"

	"promotion-engine/internal/models"
)

// SelectBest returns the applicable evaluation with the strictly greatest
// discount. Ties go to the lowest promotion id. Nil when nothing applies.
func SelectBest(evaluations []Evaluation) *Evaluation {
	var best *Evaluation
	for i := range evaluations {
		candidate := evaluations[i]
		if !candidate.Applicable {
			continue
		}
		if best == nil ||
			candidate.Discount.GreaterThan(best.Discount) ||
			(candidate.Discount.Equal(best.Discount) && candidate.Promotion.ID < best.Promotion.ID) {
			picked := candidate
			best = &picked
		}
	}
	return best
}

// SelectAutomatic evaluates every code-less promotion against the cart and
// returns the best one. Promotions carrying a code are ignored.
func (e *Evaluator) SelectAutomatic(promotions []models.Promotion, cart models.CartSnapshot, shippingCost decimal.Decimal) *Evaluation {
	evaluations := make([]Evaluation, 0, len(promotions))
	for _, promo := range promotions {
		if !promo.IsAutomatic() {
			continue
		}
		evaluations = append(evaluations, e.Evaluate(promo, cart, shippingCost))
	}
	return SelectBest(evaluations)
}
