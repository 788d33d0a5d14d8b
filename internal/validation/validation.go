package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"promotion-engine/internal/models"
)

var (
	codeRegex       = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	hundred         = decimal.NewFromInt(100)
	maxIdentifierLn = 128
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidatePromotion checks an administrator-supplied promotion.
func ValidatePromotion(p models.Promotion) error {
	if SanitizeString(p.Name.EN) == "" {
		return &ValidationError{Field: "name.en", Message: "is required"}
	}

	if p.Code != nil {
		if err := ValidateCode(*p.Code); err != nil {
			return err
		}
	}

	if !p.DiscountType.Valid() {
		return &ValidationError{Field: "discount_type", Message: fmt.Sprintf("unknown discount type %q", p.DiscountType)}
	}

	switch p.DiscountType {
	case models.DiscountPercentage:
		if err := validatePercentage(p.Value, "value"); err != nil {
			return err
		}
	case models.DiscountFixed:
		if p.Value == nil {
			return &ValidationError{Field: "value", Message: "is required"}
		}
		if !p.Value.IsPositive() {
			return &ValidationError{Field: "value", Message: "must be positive"}
		}
	case models.DiscountBuyXGetY:
		if len(p.Rewards) == 0 {
			return &ValidationError{Field: "rewards", Message: "at least one reward is required"}
		}
	case models.DiscountFreeShipping:
	}

	if p.MinOrderValue != nil && p.MinOrderValue.IsNegative() {
		return &ValidationError{Field: "min_order_value", Message: "must be non-negative"}
	}

	if p.UsageLimit != nil && *p.UsageLimit < 0 {
		return &ValidationError{Field: "usage_limit", Message: "must be non-negative"}
	}

	if p.StartsAt != nil && p.ExpiresAt != nil && p.ExpiresAt.Before(*p.StartsAt) {
		return &ValidationError{Field: "expires_at", Message: "must not be before starts_at"}
	}

	for i, c := range p.Conditions {
		field := fmt.Sprintf("conditions[%d]", i)
		if !c.Type.Valid() {
			return &ValidationError{Field: field + ".type", Message: fmt.Sprintf("unknown condition type %q", c.Type)}
		}
		if err := ValidateIdentifier(c.EntityID, field+".entity_id"); err != nil {
			return err
		}
		if c.MinQuantity != nil && *c.MinQuantity < 1 {
			return &ValidationError{Field: field + ".min_quantity", Message: "must be at least 1"}
		}
	}

	for i, r := range p.Rewards {
		field := fmt.Sprintf("rewards[%d]", i)
		if !r.Type.Valid() {
			return &ValidationError{Field: field + ".type", Message: fmt.Sprintf("unknown reward type %q", r.Type)}
		}
		if err := ValidateIdentifier(r.EntityID, field+".entity_id"); err != nil {
			return err
		}
		if r.Quantity < 1 {
			return &ValidationError{Field: field + ".quantity", Message: "must be at least 1"}
		}
		pct := r.DiscountPercentage
		if err := validatePercentage(&pct, field+".discount_percentage"); err != nil {
			return err
		}
	}

	return nil
}

// ValidateDirectPromotion checks an administrator-supplied direct promotion.
func ValidateDirectPromotion(d models.DirectPromotion) error {
	if SanitizeString(d.Name.EN) == "" {
		return &ValidationError{Field: "name.en", Message: "is required"}
	}

	switch d.Type {
	case models.DirectPriceDiscount:
		if err := validatePercentage(d.DiscountPercentage, "discount_percentage"); err != nil {
			return err
		}
		if !d.Scope.Valid() {
			return &ValidationError{Field: "scope", Message: fmt.Sprintf("unknown scope %q", d.Scope)}
		}
		if d.Scope != models.ScopeAllProducts {
			if d.TargetID == nil {
				return &ValidationError{Field: "target_id", Message: "is required for category and brand scopes"}
			}
			if err := ValidateIdentifier(*d.TargetID, "target_id"); err != nil {
				return err
			}
		}
	case models.DirectFreeShipping:
		if d.MinOrderAmount != nil && d.MinOrderAmount.IsNegative() {
			return &ValidationError{Field: "min_order_amount", Message: "must be non-negative"}
		}
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown direct promotion type %q", d.Type)}
	}

	if d.StartsAt != nil && d.ExpiresAt != nil && d.ExpiresAt.Before(*d.StartsAt) {
		return &ValidationError{Field: "expires_at", Message: "must not be before starts_at"}
	}

	return nil
}

// ValidateQuoteRequest checks a cart quote request.
func ValidateQuoteRequest(req models.QuoteRequest) error {
	if err := ValidateIdentifier(req.UserID, "user_id"); err != nil {
		return err
	}
	if err := ValidateIdentifier(req.ShippingAreaID, "shipping_area_id"); err != nil {
		return err
	}
	if req.PromotionCode != nil && SanitizeString(*req.PromotionCode) == "" {
		return &ValidationError{Field: "promotion_code", Message: "must not be blank"}
	}
	return nil
}

// ValidateRedeemRequest checks a redemption request.
func ValidateRedeemRequest(req models.RedeemRequest) error {
	if req.PromotionID <= 0 {
		return &ValidationError{Field: "promotion_id", Message: "must be positive"}
	}
	if err := ValidateIdentifier(req.OrderID, "order_id"); err != nil {
		return err
	}
	if err := ValidateIdentifier(req.UserID, "user_id"); err != nil {
		return err
	}
	if req.DiscountAmount.IsNegative() {
		return &ValidationError{Field: "discount_amount", Message: "must be non-negative"}
	}
	return nil
}

// ValidateCode checks the shape of a promotion code. Case is preserved;
// lookups are case-sensitive.
func ValidateCode(code string) error {
	if SanitizeString(code) == "" {
		return &ValidationError{Field: "code", Message: "is required"}
	}
	if !codeRegex.MatchString(code) {
		return &ValidationError{Field: "code", Message: "must be 1-64 letters, digits, '-' or '_'"}
	}
	return nil
}

// ValidateIdentifier checks an opaque external identifier.
func ValidateIdentifier(id, fieldName string) error {
	id = SanitizeString(id)
	if id == "" {
		return &ValidationError{Field: fieldName, Message: "is required"}
	}
	if len(id) > maxIdentifierLn {
		return &ValidationError{Field: fieldName, Message: fmt.Sprintf("cannot exceed %d characters", maxIdentifierLn)}
	}
	return nil
}

func validatePercentage(v *decimal.Decimal, field string) error {
	if v == nil {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if !v.IsPositive() || v.GreaterThan(hundred) {
		return &ValidationError{Field: field, Message: "must be greater than 0 and at most 100"}
	}
	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
