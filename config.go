package netrt

import "sync"

// Config is a small dotted-key typed configuration object with a
// parent-chain fallback, mirroring peng3dnet's
// `peng3d.config.Config(cfg, parent)` construction: a lookup checks
// this Config's own overlay first, then falls back to Parent.
//
// Configuration *loading* (files, flags, environment variables) is
// explicitly delegated to the embedding application by spec.md §1;
// Config only holds and looks up already-typed values.
type Config struct {
	mu     sync.RWMutex
	values map[string]interface{}
	Parent *Config
}

// NewConfig builds a Config from an overlay map with an optional
// parent for fallback lookups (pass nil for none).
func NewConfig(overlay map[string]interface{}, parent *Config) *Config {
	values := make(map[string]interface{}, len(overlay))
	for k, v := range overlay {
		values[k] = v
	}
	return &Config{values: values, Parent: parent}
}

// Set overrides a key in this Config's own overlay.
func (c *Config) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the value for key, consulting Parent if not set locally,
// and the supplied fallback if not found anywhere.
func (c *Config) Get(key string, fallback interface{}) interface{} {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return v
	}
	if c.Parent != nil {
		return c.Parent.Get(key, fallback)
	}
	return fallback
}

func (c *Config) GetBool(key string, fallback bool) bool {
	v := c.Get(key, fallback)
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
}

func (c *Config) GetInt(key string, fallback int) int {
	v := c.Get(key, fallback)
	i, ok := v.(int)
	if !ok {
		return fallback
	}
	return i
}

func (c *Config) GetString(key string, fallback string) string {
	v := c.Get(key, fallback)
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

// DefaultConfigValues mirrors peng3dnet's constants.DEFAULT_CONFIG —
// every recognized key from spec.md §6 with its default value.
func DefaultConfigValues() map[string]interface{} {
	return map[string]interface{}{
		"net.server.addr":      "",
		"net.server.addr.host": "0.0.0.0",
		"net.server.addr.port": 8080,

		"net.client.addr":      "",
		"net.client.addr.host": "localhost",
		"net.client.addr.port": 8080,

		"net.compress.enabled":   true,
		"net.compress.threshold": 8 * 1024,
		"net.compress.level":     6,

		"net.ssl.enabled":                false,
		"net.ssl.force":                  true,
		"net.ssl.cafile":                 "",
		"net.ssl.server.certfile":        "",
		"net.ssl.server.keyfile":         "",
		"net.ssl.server.force_verify":    true,
		"net.ssl.client.check_hostname":  false,
		"net.ssl.client.force_verify":    false,

		"net.events.enable": "auto",

		"net.debug.print.recv":    false,
		"net.debug.print.send":    false,
		"net.debug.print.connect": false,
		"net.debug.print.close":   false,

		"net.registry.autosync":            true,
		"net.registry.missingpacketaction": "closeconnection",
	}
}

// NewDefaultConfig builds a Config seeded with DefaultConfigValues,
// with overlay applied on top and an optional parent for fallback.
func NewDefaultConfig(overlay map[string]interface{}, parent *Config) *Config {
	merged := DefaultConfigValues()
	for k, v := range overlay {
		merged[k] = v
	}
	return NewConfig(merged, parent)
}
