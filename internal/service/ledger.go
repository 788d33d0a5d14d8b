package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"promotion-engine/internal/database"
	"promotion-engine/internal/features"
	"promotion-engine/internal/metrics"
	"promotion-engine/internal/models"
	"promotion-engine/internal/validation"
)

// RedeemPromotion records one use of a promotion by an order. The usage
// counter is bumped and the usage row written in one transaction, and only
// while the counter is below the limit, so concurrent redemptions can never
// overshoot it.
func (s *Service) RedeemPromotion(ctx context.Context, req models.RedeemRequest) (models.PromotionUsage, error) {
	if err := validation.ValidateRedeemRequest(req); err != nil {
		return models.PromotionUsage{}, err
	}

	ctx, span := s.tracer.StartSpan(ctx, "service.RedeemPromotion")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("promotion_id", req.PromotionID),
		attribute.String("order_id", req.OrderID),
	)

	usage := models.PromotionUsage{
		ID:             uuid.New().String(),
		PromotionID:    req.PromotionID,
		OrderID:        req.OrderID,
		UserID:         req.UserID,
		DiscountAmount: req.DiscountAmount,
		CreatedAt:      s.now(),
	}

	err := s.store.RecordUsage(ctx, usage)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrDuplicateUsage):
		s.metrics.Redemptions.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		return models.PromotionUsage{}, ErrAlreadyRedeemed
	case errors.Is(err, database.ErrNotFound):
		s.metrics.Redemptions.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return models.PromotionUsage{}, ErrPromotionNotFound
	case errors.Is(err, database.ErrLimitReached):
		s.metrics.Redemptions.WithLabelValues(metrics.OutcomeLimitReached).Inc()
		s.logger.Info().Int64("promotion_id", req.PromotionID).Str("order_id", req.OrderID).Msg("redemption refused: usage limit reached")
		return models.PromotionUsage{}, ErrUsageLimitExceeded
	default:
		s.metrics.Redemptions.WithLabelValues(metrics.OutcomeError).Inc()
		span.RecordError(err)
		return models.PromotionUsage{}, fmt.Errorf("failed to record usage: %w", err)
	}

	s.metrics.Redemptions.WithLabelValues(metrics.OutcomeSuccess).Inc()
	if s.features.IsEnabled(features.EventHooks) {
		s.events.PublishPromotionRedeemed(ctx, usage)
	}

	s.logger.Info().
		Str("usage_id", usage.ID).
		Int64("promotion_id", usage.PromotionID).
		Str("order_id", usage.OrderID).
		Str("discount", usage.DiscountAmount.String()).
		Msg("promotion redeemed")

	return usage, nil
}

// ListPromotionUsage returns the usage history of a promotion.
func (s *Service) ListPromotionUsage(ctx context.Context, promotionID int64) ([]models.PromotionUsage, error) {
	if _, err := s.GetPromotion(ctx, promotionID); err != nil {
		return nil, err
	}

	usages, err := s.store.ListUsage(ctx, promotionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return usages, nil
}
