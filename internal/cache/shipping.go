package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"promotion-engine/internal/models"
)

// ShippingAreaLoader loads a shipping area from the source of truth.
type ShippingAreaLoader func(ctx context.Context, areaID string) (*models.ShippingArea, error)

// ShippingAreas is a read-through cache in front of shipping area lookups.
// Loader errors, including not-found, are never cached.
type ShippingAreas struct {
	cache  Cache
	load   ShippingAreaLoader
	ttl    time.Duration
	logger zerolog.Logger
}

func NewShippingAreas(c Cache, load ShippingAreaLoader, ttl time.Duration, logger zerolog.Logger) *ShippingAreas {
	return &ShippingAreas{cache: c, load: load, ttl: ttl, logger: logger}
}

func shippingKey(areaID string) string {
	return "shipping_area:" + areaID
}

// Get returns the area, consulting the cache first. Cache failures fall
// through to the loader.
func (s *ShippingAreas) Get(ctx context.Context, areaID string) (*models.ShippingArea, error) {
	var area models.ShippingArea
	err := GetJSON(ctx, s.cache, shippingKey(areaID), &area)
	if err == nil {
		return &area, nil
	}

	loaded, err := s.load(ctx, areaID)
	if err != nil {
		return nil, err
	}
	if err := SetJSON(ctx, s.cache, shippingKey(areaID), loaded, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("area_id", areaID).Msg("failed to cache shipping area")
	}
	return loaded, nil
}

// Invalidate drops a cached area.
func (s *ShippingAreas) Invalidate(ctx context.Context, areaID string) error {
	if err := s.cache.Delete(ctx, shippingKey(areaID)); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
