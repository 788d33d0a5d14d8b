package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"promotion-engine/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventPromotionRedeemed is emitted after a usage row is committed.
	EventPromotionRedeemed EventType = "promotion.redeemed"
	// EventDirectPromotionApplied is emitted after a price discount is activated.
	EventDirectPromotionApplied EventType = "direct_promotion.applied"
	// EventDirectPromotionReverted is emitted after price discounts are reverted.
	EventDirectPromotionReverted EventType = "direct_promotion.reverted"
	// EventFreeShippingToggled is emitted when a free shipping campaign is switched on or off.
	EventFreeShippingToggled EventType = "direct_promotion.free_shipping_toggled"
)

// AllEventTypes lists every event type the engine publishes.
var AllEventTypes = []EventType{
	EventPromotionRedeemed,
	EventDirectPromotionApplied,
	EventDirectPromotionReverted,
	EventFreeShippingToggled,
}

// Event represents an event in the system.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// PromotionRedeemedData contains data for promotion redeemed events.
type PromotionRedeemedData struct {
	Usage models.PromotionUsage `json:"usage"`
}

// DirectPromotionAppliedData contains data for direct promotion applied events.
type DirectPromotionAppliedData struct {
	PromotionID int64              `json:"promotion_id"`
	Result      models.ApplyResult `json:"result"`
}

// DirectPromotionRevertedData contains data for direct promotion reverted events.
type DirectPromotionRevertedData struct {
	RevertedCount int `json:"reverted_count"`
}

// FreeShippingToggledData contains data for free shipping toggle events.
type FreeShippingToggledData struct {
	PromotionID int64 `json:"promotion_id"`
	Active      bool  `json:"active"`
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	inflight sync.WaitGroup
	logger   zerolog.Logger
	now      func() time.Time
}

// NewManager creates a new event manager.
func NewManager(enabled bool, logger zerolog.Logger) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		logger:   logger.With().Str("component", "events").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish delivers an event to all subscribed handlers. Handlers run
// asynchronously and outlive the caller's cancellation.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data any) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.enabled {
		return
	}
	handlers := m.handlers[eventType]
	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: m.now(),
		Data:      data,
	}

	detached := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		m.inflight.Add(1)
		go func(h Handler) {
			defer m.inflight.Done()
			if err := h(detached, event); err != nil {
				m.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("event handler failed")
			}
		}(handler)
	}
}

// PublishPromotionRedeemed publishes a promotion redeemed event.
func (m *Manager) PublishPromotionRedeemed(ctx context.Context, usage models.PromotionUsage) {
	m.Publish(ctx, EventPromotionRedeemed, PromotionRedeemedData{Usage: usage})
}

// PublishDirectPromotionApplied publishes a direct promotion applied event.
func (m *Manager) PublishDirectPromotionApplied(ctx context.Context, promotionID int64, result models.ApplyResult) {
	m.Publish(ctx, EventDirectPromotionApplied, DirectPromotionAppliedData{
		PromotionID: promotionID,
		Result:      result,
	})
}

// PublishDirectPromotionReverted publishes a direct promotion reverted event.
func (m *Manager) PublishDirectPromotionReverted(ctx context.Context, reverted int) {
	m.Publish(ctx, EventDirectPromotionReverted, DirectPromotionRevertedData{RevertedCount: reverted})
}

// PublishFreeShippingToggled publishes a free shipping toggle event.
func (m *Manager) PublishFreeShippingToggled(ctx context.Context, promotionID int64, active bool) {
	m.Publish(ctx, EventFreeShippingToggled, FreeShippingToggledData{
		PromotionID: promotionID,
		Active:      active,
	})
}

// Wait blocks until every in-flight handler has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Shutdown stops accepting events and waits for in-flight handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.inflight.Wait()
}
