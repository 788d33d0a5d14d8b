package features

import (
	"sort"
	"sync"
)

// Flag names understood by the engine.
const (
	// AutomaticPromotions lets quotes fall back to the best code-less promotion.
	AutomaticPromotions = "automatic_promotions"
	// ShippingCache routes shipping area lookups through the cache layer.
	ShippingCache = "shipping_cache"
	// EventHooks publishes promotion events to subscribers.
	EventHooks = "event_hooks"
	// FreeShippingCampaigns lets active FREE_SHIPPING direct promotions waive shipping on quotes.
	FreeShippingCampaigns = "free_shipping_campaigns"
)

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// NewManager creates an empty feature flag manager.
func NewManager() *Manager {
	return &Manager{flags: make(map[string]*FeatureFlag)}
}

// NewDefaultManager registers the engine's flags with their defaults and
// applies overrides. Overrides for unknown names are ignored.
func NewDefaultManager(overrides map[string]bool) *Manager {
	m := NewManager()
	m.Register(AutomaticPromotions, true, "Apply the best automatic promotion when no code is given")
	m.Register(ShippingCache, true, "Cache shipping area lookups")
	m.Register(EventHooks, true, "Publish promotion events")
	m.Register(FreeShippingCampaigns, true, "Honor active free shipping campaigns on quotes")

	for name, enabled := range overrides {
		if enabled {
			m.Enable(name)
		} else {
			m.Disable(name)
		}
	}
	return m
}

// Register registers a new feature flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled checks if a feature flag is enabled. Unknown flags are disabled.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	return exists && flag.Enabled
}

// Enable enables a feature flag.
func (m *Manager) Enable(name string) {
	m.set(name, true)
}

// Disable disables a feature flag.
func (m *Manager) Disable(name string) {
	m.set(name, false)
}

func (m *Manager) set(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flag, exists := m.flags[name]; exists {
		flag.Enabled = enabled
	}
}

// List returns a copy of all flags sorted by name.
func (m *Manager) List() []FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]FeatureFlag, 0, len(m.flags))
	for _, v := range m.flags {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
