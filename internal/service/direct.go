package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"promotion-engine/internal/database"
	"promotion-engine/internal/events"
	"promotion-engine/internal/features"
	"promotion-engine/internal/metrics"
	"promotion-engine/internal/models"
	"promotion-engine/internal/pricing"
	"promotion-engine/internal/tracing"
)

// DirectPromotionEngine activates and reverts store-wide campaigns.
// Transitions are serialized in-process; the store makes each one atomic.
type DirectPromotionEngine struct {
	mu       sync.Mutex
	store    Store
	events   *events.Manager
	features *features.Manager
	metrics  *metrics.Metrics
	tracer   *tracing.Tracer
	logger   zerolog.Logger
	now      func() time.Time
}

func newDirectPromotionEngine(store Store, opts Options, now func() time.Time) *DirectPromotionEngine {
	return &DirectPromotionEngine{
		store:    store,
		events:   opts.Events,
		features: opts.Features,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		logger:   opts.Logger.With().Str("component", "direct_promotions").Logger(),
		now:      now,
	}
}

func (e *DirectPromotionEngine) hooksEnabled() bool {
	return e.features.IsEnabled(features.EventHooks)
}

func (e *DirectPromotionEngine) load(ctx context.Context, id int64) (*models.DirectPromotion, error) {
	d, err := e.store.GetDirectPromotion(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrDirectPromotionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load direct promotion: %w", err)
	}
	return d, nil
}

// ApplyPriceDiscount activates a PRICE_DISCOUNT campaign. Any other active
// price discount is reverted and deactivated first, then every active
// variant in scope is repriced from its original price. The whole
// transition commits or rolls back as one unit.
func (e *DirectPromotionEngine) ApplyPriceDiscount(ctx context.Context, id int64) (models.ApplyResult, error) {
	ctx, span := e.tracer.StartSpan(ctx, "service.ApplyPriceDiscount")
	defer span.End()
	span.SetAttributes(attribute.Int64("direct_promotion_id", id))

	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.load(ctx, id)
	if err != nil {
		return models.ApplyResult{}, err
	}

	switch {
	case d.Type != models.DirectPriceDiscount:
		return models.ApplyResult{}, &StateError{PromotionID: id, Detail: "is not a price discount"}
	case d.Active:
		return models.ApplyResult{}, &StateError{PromotionID: id, Detail: "is already active"}
	case d.DiscountPercentage == nil:
		return models.ApplyResult{}, &StateError{PromotionID: id, Detail: "has no discount percentage"}
	case d.Scope != models.ScopeAllProducts && d.TargetID == nil:
		return models.ApplyResult{}, &StateError{PromotionID: id, Detail: "has no scope target"}
	case !d.InWindow(e.now()):
		return models.ApplyResult{}, &StateError{PromotionID: id, Detail: "is outside its active window"}
	}

	pct := *d.DiscountPercentage
	rw := database.PriceRewrite{
		PromotionID: id,
		Scope:       d.Scope,
		Reprice: func(original decimal.Decimal) decimal.Decimal {
			return pricing.DiscountedPrice(original, pct)
		},
	}
	if d.TargetID != nil {
		rw.TargetID = *d.TargetID
	}

	result, err := e.store.ApplyPriceDiscount(ctx, rw)
	if errors.Is(err, database.ErrNotFound) {
		return models.ApplyResult{}, ErrDirectPromotionNotFound
	}
	if err != nil {
		span.RecordError(err)
		return models.ApplyResult{}, fmt.Errorf("failed to apply price discount: %w", err)
	}

	e.metrics.VariantMutations.WithLabelValues("revert").Add(float64(result.RevertedCount))
	e.metrics.VariantMutations.WithLabelValues("apply").Add(float64(result.AppliedCount))
	if e.hooksEnabled() {
		e.events.PublishDirectPromotionApplied(ctx, id, result)
	}

	e.logger.Info().
		Int64("direct_promotion_id", id).
		Str("scope", string(d.Scope)).
		Str("percentage", pct.String()).
		Int("applied", result.AppliedCount).
		Int("reverted", result.RevertedCount).
		Msg("price discount applied")

	return result, nil
}

// RevertPriceDiscounts restores every discounted variant to its original
// price and deactivates all price discount campaigns. Calling it with
// nothing discounted is a no-op.
func (e *DirectPromotionEngine) RevertPriceDiscounts(ctx context.Context) (int, error) {
	ctx, span := e.tracer.StartSpan(ctx, "service.RevertPriceDiscounts")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.revert(ctx)
}

func (e *DirectPromotionEngine) revert(ctx context.Context) (int, error) {
	reverted, err := e.store.RevertPriceDiscounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to revert price discounts: %w", err)
	}

	e.metrics.VariantMutations.WithLabelValues("revert").Add(float64(reverted))
	if e.hooksEnabled() {
		e.events.PublishDirectPromotionReverted(ctx, reverted)
	}
	e.logger.Info().Int("reverted", reverted).Msg("price discounts reverted")
	return reverted, nil
}

// ActivateFreeShipping switches a FREE_SHIPPING campaign on. Several free
// shipping campaigns may be active at once.
func (e *DirectPromotionEngine) ActivateFreeShipping(ctx context.Context, id int64) (*models.DirectPromotion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Type != models.DirectFreeShipping {
		return nil, &StateError{PromotionID: id, Detail: "is not a free shipping campaign"}
	}
	if d.Active {
		return nil, &StateError{PromotionID: id, Detail: "is already active"}
	}

	if err := e.store.SetDirectPromotionActive(ctx, id, true); err != nil {
		return nil, fmt.Errorf("failed to activate free shipping: %w", err)
	}
	d.Active = true

	if e.hooksEnabled() {
		e.events.PublishFreeShippingToggled(ctx, id, true)
	}
	e.logger.Info().Int64("direct_promotion_id", id).Msg("free shipping activated")
	return d, nil
}

// Deactivate switches a direct promotion off. For a price discount this
// restores the original variant prices.
func (e *DirectPromotionEngine) Deactivate(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if !d.Active {
		return &StateError{PromotionID: id, Detail: "is not active"}
	}

	if d.Type == models.DirectPriceDiscount {
		_, err := e.revert(ctx)
		return err
	}

	if err := e.store.SetDirectPromotionActive(ctx, id, false); err != nil {
		return fmt.Errorf("failed to deactivate free shipping: %w", err)
	}
	if e.hooksEnabled() {
		e.events.PublishFreeShippingToggled(ctx, id, false)
	}
	e.logger.Info().Int64("direct_promotion_id", id).Msg("free shipping deactivated")
	return nil
}

// GetPromotionStats reports how many campaigns are active and how many
// variants currently carry a discounted price.
func (e *DirectPromotionEngine) GetPromotionStats(ctx context.Context) (models.PromotionStats, error) {
	stats, err := e.store.DirectPromotionStats(ctx)
	if err != nil {
		return models.PromotionStats{}, fmt.Errorf("failed to load direct promotion stats: %w", err)
	}

	coded, automatic, err := e.store.CountActivePromotions(ctx)
	if err != nil {
		return models.PromotionStats{}, fmt.Errorf("failed to count promotions: %w", err)
	}
	stats.ActiveCodePromotions = coded
	stats.ActiveAutomaticPromotions = automatic
	return stats, nil
}
