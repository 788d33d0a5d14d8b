package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"promotion-engine/internal/database"
	"promotion-engine/internal/features"
	"promotion-engine/internal/models"
	"promotion-engine/internal/pricing"
	"promotion-engine/internal/validation"
)

// Values reported in OrderTotal.ShippingWaivedBy.
const (
	WaivedByPromotion       = "promotion"
	WaivedByDirectPromotion = "direct_promotion"
)

// ValidatePromotionCode evaluates the promotion carrying code against cart.
// Unknown or blank codes return ErrInvalidCode; a promotion that does not
// apply returns a *NotEligibleError alongside the evaluation. A
// FREE_SHIPPING promotion is worth zero here since no shipping area is known.
func (s *Service) ValidatePromotionCode(ctx context.Context, code string, cart models.CartSnapshot) (pricing.Evaluation, error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.ValidatePromotionCode")
	defer span.End()

	return s.evaluateCode(ctx, code, cart, decimal.Zero)
}

func (s *Service) evaluateCode(ctx context.Context, code string, cart models.CartSnapshot, shippingCost decimal.Decimal) (pricing.Evaluation, error) {
	if strings.TrimSpace(code) == "" {
		return pricing.Evaluation{}, ErrInvalidCode
	}

	promo, err := s.store.FindPromotionByCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return pricing.Evaluation{}, ErrInvalidCode
	}
	if err != nil {
		return pricing.Evaluation{}, fmt.Errorf("failed to look up promotion code: %w", err)
	}

	eval := s.evaluator.Evaluate(*promo, cart, shippingCost)
	if !eval.Applicable {
		return eval, &NotEligibleError{Reason: eval.Reason, Condition: eval.FailedCondition}
	}
	return eval, nil
}

// CheckPromotionCode is the administrative code check. Unlike the storefront
// path it reports whether the code is unknown or merely not applicable.
func (s *Service) CheckPromotionCode(ctx context.Context, req models.ValidateCodeRequest) (models.CodeCheckResponse, error) {
	if err := validation.ValidateIdentifier(req.UserID, "user_id"); err != nil {
		return models.CodeCheckResponse{}, err
	}

	cart, err := s.LoadCart(ctx, req.UserID)
	if err != nil {
		return models.CodeCheckResponse{}, err
	}

	eval, err := s.ValidatePromotionCode(ctx, req.Code, cart)
	var notEligible *NotEligibleError
	switch {
	case err == nil:
		amount := eval.Discount
		return models.CodeCheckResponse{Applicable: true, DiscountAmount: &amount}, nil
	case errors.Is(err, ErrInvalidCode):
		return models.CodeCheckResponse{Kind: "invalid_code"}, nil
	case errors.As(err, &notEligible):
		return models.CodeCheckResponse{
			Kind:            "not_eligible",
			Reason:          string(notEligible.Reason),
			FailedCondition: notEligible.Condition,
		}, nil
	default:
		return models.CodeCheckResponse{}, err
	}
}

// ApplyBestAutomaticPromotion returns the best applicable code-less
// promotion for cart, or nil. It never consumes usage.
func (s *Service) ApplyBestAutomaticPromotion(ctx context.Context, cart models.CartSnapshot) (*pricing.Evaluation, error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.ApplyBestAutomaticPromotion")
	defer span.End()

	return s.bestAutomatic(ctx, cart, decimal.Zero)
}

func (s *Service) bestAutomatic(ctx context.Context, cart models.CartSnapshot, shippingCost decimal.Decimal) (*pricing.Evaluation, error) {
	if !s.features.IsEnabled(features.AutomaticPromotions) {
		return nil, nil
	}

	promotions, err := s.store.ListAutomaticPromotions(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list automatic promotions: %w", err)
	}

	return s.evaluator.SelectAutomatic(promotions, cart, shippingCost), nil
}

// CalculateOrderTotal prices the stored cart of req.UserID for delivery to
// req.ShippingAreaID. It is read-only: redemption happens separately at
// order placement.
func (s *Service) CalculateOrderTotal(ctx context.Context, req models.QuoteRequest) (models.OrderTotal, error) {
	if err := validation.ValidateQuoteRequest(req); err != nil {
		return models.OrderTotal{}, err
	}

	ctx, span := s.tracer.StartSpan(ctx, "service.CalculateOrderTotal")
	defer span.End()
	span.SetAttributes(attribute.String("shipping_area_id", req.ShippingAreaID))

	var (
		cart     models.CartSnapshot
		shipping shippingQuote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cart, err = s.LoadCart(gctx, req.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		shipping, err = s.lookupShipping(gctx, req.ShippingAreaID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.OrderTotal{}, err
	}

	return s.quote(ctx, cart, shipping, req.PromotionCode)
}

// QuoteCart prices an already-built cart snapshot.
func (s *Service) QuoteCart(ctx context.Context, cart models.CartSnapshot, shippingAreaID string, code *string) (models.OrderTotal, error) {
	shipping, err := s.lookupShipping(ctx, shippingAreaID)
	if err != nil {
		return models.OrderTotal{}, err
	}
	return s.quote(ctx, cart, shipping, code)
}

type shippingQuote struct {
	cost     decimal.Decimal
	warnings []models.DataIntegrityWarning
}

// lookupShipping resolves the area's cost. Missing areas or costs price
// shipping at zero and produce a warning instead of an error.
func (s *Service) lookupShipping(ctx context.Context, areaID string) (shippingQuote, error) {
	var (
		area *models.ShippingArea
		err  error
	)
	if s.features.IsEnabled(features.ShippingCache) {
		area, err = s.shipping.Get(ctx, areaID)
	} else {
		area, err = s.store.GetShippingArea(ctx, areaID)
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		return s.shippingWarning(ctx, areaID, models.WarningMissingShippingArea,
			fmt.Sprintf("shipping area %q not found; shipping priced at 0", areaID)), nil
	case err != nil:
		return shippingQuote{}, fmt.Errorf("failed to look up shipping area: %w", err)
	case area.Cost == nil:
		return s.shippingWarning(ctx, areaID, models.WarningMissingShippingCost,
			fmt.Sprintf("shipping area %q has no cost; shipping priced at 0", areaID)), nil
	case area.Cost.IsNegative():
		return s.shippingWarning(ctx, areaID, models.WarningMissingShippingCost,
			fmt.Sprintf("shipping area %q has a negative cost; shipping priced at 0", areaID)), nil
	}

	return shippingQuote{cost: *area.Cost}, nil
}

func (s *Service) shippingWarning(ctx context.Context, areaID, code, message string) shippingQuote {
	s.logger.Warn().Str("area_id", areaID).Str("warning", code).Msg(message)
	s.metrics.IntegrityWarns.WithLabelValues(code).Inc()
	return shippingQuote{
		cost:     decimal.Zero,
		warnings: []models.DataIntegrityWarning{{Code: code, Message: message}},
	}
}

func (s *Service) quote(ctx context.Context, cart models.CartSnapshot, shipping shippingQuote, code *string) (models.OrderTotal, error) {
	total := models.OrderTotal{
		Subtotal:     cart.Subtotal,
		ShippingCost: shipping.cost,
		Discount:     decimal.Zero,
		Warnings:     shipping.warnings,
	}

	if total.ShippingCost.IsPositive() {
		waived, err := s.freeShippingCampaignApplies(ctx, cart.Subtotal)
		if err != nil {
			return models.OrderTotal{}, err
		}
		if waived {
			total.ShippingCost = decimal.Zero
			total.ShippingWaivedBy = WaivedByDirectPromotion
		}
	}

	var (
		eval   *pricing.Evaluation
		source = "none"
	)
	if code != nil {
		e, err := s.evaluateCode(ctx, *code, cart, total.ShippingCost)
		if err != nil {
			return models.OrderTotal{}, err
		}
		eval = &e
		source = "code"
	} else {
		best, err := s.bestAutomatic(ctx, cart, total.ShippingCost)
		if err != nil {
			return models.OrderTotal{}, err
		}
		if best != nil {
			eval = best
			source = "automatic"
		}
	}

	if eval != nil {
		promo := eval.Promotion
		total.Promotion = &promo
		if promo.DiscountType == models.DiscountFreeShipping {
			if total.ShippingCost.IsPositive() {
				total.ShippingCost = decimal.Zero
				total.ShippingWaivedBy = WaivedByPromotion
			}
		} else {
			total.Discount = eval.Discount
		}
	}

	grand := total.Subtotal.Add(total.ShippingCost).Sub(total.Discount)
	if grand.IsNegative() {
		grand = decimal.Zero
	}
	total.Total = pricing.RoundMoney(grand)

	s.metrics.Quotes.WithLabelValues(source).Inc()
	return total, nil
}

// freeShippingCampaignApplies reports whether an active FREE_SHIPPING direct
// promotion covers an order of subtotal.
func (s *Service) freeShippingCampaignApplies(ctx context.Context, subtotal decimal.Decimal) (bool, error) {
	if !s.features.IsEnabled(features.FreeShippingCampaigns) {
		return false, nil
	}

	campaigns, err := s.store.ListActiveFreeShipping(ctx, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to list free shipping campaigns: %w", err)
	}
	for _, c := range campaigns {
		if c.MinOrderAmount == nil || subtotal.GreaterThanOrEqual(*c.MinOrderAmount) {
			return true, nil
		}
	}
	return false, nil
}
