package netrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigFallsBackToParent(t *testing.T) {
	parent := NewConfig(map[string]interface{}{"net.ssl.enabled": true}, nil)
	child := NewConfig(map[string]interface{}{}, parent)

	assert.True(t, child.GetBool("net.ssl.enabled", false))
}

func TestConfigOwnValueShadowsParent(t *testing.T) {
	parent := NewConfig(map[string]interface{}{"net.ssl.enabled": true}, nil)
	child := NewConfig(map[string]interface{}{"net.ssl.enabled": false}, parent)

	assert.False(t, child.GetBool("net.ssl.enabled", true))
}

func TestConfigMissingKeyUsesFallback(t *testing.T) {
	cfg := NewConfig(map[string]interface{}{}, nil)
	assert.Equal(t, "default", cfg.GetString("missing.key", "default"))
}

func TestNewDefaultConfigAppliesOverlayOnTopOfDefaults(t *testing.T) {
	cfg := NewDefaultConfig(map[string]interface{}{"net.server.addr.port": 9999}, nil)
	assert.Equal(t, 9999, cfg.GetInt("net.server.addr.port", 0))
	assert.True(t, cfg.GetBool("net.compress.enabled", false))
}

func TestConfigSetOverridesOwnOverlay(t *testing.T) {
	cfg := NewConfig(map[string]interface{}{}, nil)
	cfg.Set("foo", "bar")
	assert.Equal(t, "bar", cfg.GetString("foo", ""))
}
