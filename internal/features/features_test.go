package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultManager_Overrides(t *testing.T) {
	m := NewDefaultManager(map[string]bool{
		AutomaticPromotions: false,
		"unknown_flag":      true,
	})

	assert.False(t, m.IsEnabled(AutomaticPromotions))
	assert.True(t, m.IsEnabled(ShippingCache))
	assert.True(t, m.IsEnabled(EventHooks))
	assert.False(t, m.IsEnabled("unknown_flag"))

	flags := m.List()
	assert.Len(t, flags, 4)
	assert.Equal(t, AutomaticPromotions, flags[0].Name)
}

func TestManager_EnableDisable(t *testing.T) {
	m := NewManager()
	m.Register("x", false, "")

	m.Enable("x")
	assert.True(t, m.IsEnabled("x"))
	m.Disable("x")
	assert.False(t, m.IsEnabled("x"))

	m.Enable("missing")
	assert.False(t, m.IsEnabled("missing"))
}
