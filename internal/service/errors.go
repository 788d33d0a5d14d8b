package service

import (
	"errors"
	"fmt"

	"promotion-engine/internal/models"
	"promotion-engine/internal/pricing"
)

var (
	// ErrInvalidCode means the supplied promotion code does not exist.
	ErrInvalidCode = errors.New("promotion code is invalid")

	// ErrNotEligible means the promotion exists but does not apply to the cart.
	ErrNotEligible = errors.New("promotion is not applicable to this cart")

	// ErrUsageLimitExceeded means every redemption slot is already taken.
	ErrUsageLimitExceeded = errors.New("promotion usage limit exceeded")

	// ErrAlreadyRedeemed means the order already redeemed the promotion.
	ErrAlreadyRedeemed = errors.New("promotion already redeemed for this order")

	ErrPromotionNotFound       = errors.New("promotion not found")
	ErrDirectPromotionNotFound = errors.New("direct promotion not found")

	// ErrInvalidDirectPromotionState covers activation requests the
	// campaign's type or current state does not allow.
	ErrInvalidDirectPromotionState = errors.New("invalid direct promotion state")
)

// NotEligibleError carries the reason a promotion did not apply.
// It matches ErrNotEligible under errors.Is.
type NotEligibleError struct {
	Reason pricing.NotEligibleReason
	// Condition is the first unmet condition, if any.
	Condition *models.PromotionCondition
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotEligible.Error(), e.Reason)
}

func (e *NotEligibleError) Unwrap() error {
	return ErrNotEligible
}

// StateError explains why a direct promotion transition was refused.
// It matches ErrInvalidDirectPromotionState under errors.Is.
type StateError struct {
	PromotionID int64
	Detail      string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: promotion %d %s", ErrInvalidDirectPromotionState.Error(), e.PromotionID, e.Detail)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidDirectPromotionState
}
