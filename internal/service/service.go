package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"promotion-engine/internal/cache"
	"promotion-engine/internal/database"
	"promotion-engine/internal/events"
	"promotion-engine/internal/features"
	"promotion-engine/internal/metrics"
	"promotion-engine/internal/models"
	"promotion-engine/internal/pricing"
	"promotion-engine/internal/tracing"
	"promotion-engine/internal/validation"
)

// Store is the persistence the service layer needs. *database.DB implements it.
type Store interface {
	UpsertPromotion(ctx context.Context, promo models.Promotion) (int64, error)
	GetPromotion(ctx context.Context, id int64) (*models.Promotion, error)
	FindPromotionByCode(ctx context.Context, code string) (*models.Promotion, error)
	ListAutomaticPromotions(ctx context.Context, now time.Time) ([]models.Promotion, error)
	CountActivePromotions(ctx context.Context) (coded, automatic int, err error)

	RecordUsage(ctx context.Context, usage models.PromotionUsage) error
	ListUsage(ctx context.Context, promotionID int64) ([]models.PromotionUsage, error)

	UpsertDirectPromotion(ctx context.Context, d models.DirectPromotion) (int64, error)
	GetDirectPromotion(ctx context.Context, id int64) (*models.DirectPromotion, error)
	ListActiveFreeShipping(ctx context.Context, now time.Time) ([]models.DirectPromotion, error)
	SetDirectPromotionActive(ctx context.Context, id int64, active bool) error
	ApplyPriceDiscount(ctx context.Context, rw database.PriceRewrite) (models.ApplyResult, error)
	RevertPriceDiscounts(ctx context.Context) (int, error)
	DirectPromotionStats(ctx context.Context) (models.PromotionStats, error)

	GetShippingArea(ctx context.Context, id string) (*models.ShippingArea, error)
	LoadCartLines(ctx context.Context, userID string) ([]models.CartLine, error)
}

// Options wires the optional collaborators. Nil fields get working defaults.
type Options struct {
	Cache    cache.Cache
	CacheTTL time.Duration
	Events   *events.Manager
	Features *features.Manager
	Metrics  *metrics.Metrics
	Tracer   *tracing.Tracer
	Logger   zerolog.Logger
	// Now is the clock used for promotion windows.
	Now func() time.Time
}

func (o *Options) withDefaults() {
	if o.Cache == nil {
		o.Cache = cache.NewInMemoryCache()
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.Events == nil {
		o.Events = events.NewManager(false, o.Logger)
	}
	if o.Features == nil {
		o.Features = features.NewDefaultManager(nil)
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	if o.Tracer == nil {
		o.Tracer = tracing.Noop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service provides the promotion and pricing operations.
// Direct promotion operations come from the embedded engine.
type Service struct {
	*DirectPromotionEngine

	store     Store
	evaluator *pricing.Evaluator
	shipping  *cache.ShippingAreas
	events    *events.Manager
	features  *features.Manager
	metrics   *metrics.Metrics
	tracer    *tracing.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a new service instance.
func NewService(store Store, opts Options) *Service {
	opts.withDefaults()
	now := func() time.Time { return opts.Now().UTC() }
	logger := opts.Logger.With().Str("component", "service").Logger()

	return &Service{
		DirectPromotionEngine: newDirectPromotionEngine(store, opts, now),
		store:                 store,
		evaluator:             pricing.NewEvaluator(now),
		shipping:              cache.NewShippingAreas(opts.Cache, store.GetShippingArea, opts.CacheTTL, logger),
		events:                opts.Events,
		features:              opts.Features,
		metrics:               opts.Metrics,
		tracer:                opts.Tracer,
		logger:                logger,
		now:                   now,
	}
}

// Features exposes the flag manager.
func (s *Service) Features() *features.Manager {
	return s.features
}

// SavePromotion creates or updates a promotion with its conditions and rewards.
func (s *Service) SavePromotion(ctx context.Context, promo models.Promotion) (*models.Promotion, error) {
	if err := validation.ValidatePromotion(promo); err != nil {
		return nil, err
	}

	id, err := s.store.UpsertPromotion(ctx, promo)
	if errors.Is(err, database.ErrLimitBelowUsage) {
		return nil, &validation.ValidationError{Field: "usage_limit", Message: "must not be below the number of recorded redemptions"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save promotion: %w", err)
	}

	saved, err := s.store.GetPromotion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload promotion: %w", err)
	}
	return saved, nil
}

// GetPromotion returns a promotion by id.
func (s *Service) GetPromotion(ctx context.Context, id int64) (*models.Promotion, error) {
	promo, err := s.store.GetPromotion(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrPromotionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get promotion: %w", err)
	}
	return promo, nil
}

// SaveDirectPromotion creates or updates a direct promotion. Activation is
// a separate transition.
func (s *Service) SaveDirectPromotion(ctx context.Context, d models.DirectPromotion) (*models.DirectPromotion, error) {
	if err := validation.ValidateDirectPromotion(d); err != nil {
		return nil, err
	}

	// Edits are serialized with activation so an applied campaign always
	// matches the prices it rewrote.
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.store.UpsertDirectPromotion(ctx, d)
	if errors.Is(err, database.ErrDirectPromotionActive) {
		return nil, &StateError{PromotionID: d.ID, Detail: "cannot be edited while active"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save direct promotion: %w", err)
	}

	saved, err := s.store.GetDirectPromotion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload direct promotion: %w", err)
	}
	return saved, nil
}

// LoadCart builds the cart snapshot for a user from the stored cart rows.
func (s *Service) LoadCart(ctx context.Context, userID string) (models.CartSnapshot, error) {
	lines, err := s.store.LoadCartLines(ctx, userID)
	if err != nil {
		return models.CartSnapshot{}, fmt.Errorf("failed to load cart: %w", err)
	}
	return models.NewCartSnapshot(userID, lines), nil
}
