package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// RegistryConfig is the serialized form of a Registry. It appears under
// "providers" in the YAML config and may also be loaded from JSON.
type RegistryConfig struct {
	Primary   *EndpointConfig `json:"primary,omitempty" yaml:"primary,omitempty"`
	Secondary *EndpointConfig `json:"secondary,omitempty" yaml:"secondary,omitempty"`
	Health    *HealthConfig   `json:"health,omitempty" yaml:"health,omitempty"`
}

// Endpoints returns the configured endpoints keyed by slot.
func (c *RegistryConfig) Endpoints() map[Slot]*EndpointConfig {
	out := make(map[Slot]*EndpointConfig, 2)
	if c == nil {
		return out
	}
	if c.Primary != nil {
		out[SlotPrimary] = c.Primary
	}
	if c.Secondary != nil {
		out[SlotSecondary] = c.Secondary
	}
	return out
}

// NewRegistryFromConfig builds a Registry from its serialized form.
func NewRegistryFromConfig(cfg *RegistryConfig) *Registry {
	r := NewRegistry(cfg.Endpoints())
	if cfg != nil && cfg.Health != nil {
		r.SetHealthConfig(*cfg.Health)
	}
	return r
}

// LoadFromFile loads a registry configuration from a JSON file.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return LoadFromJSON(data)
}

// LoadFromJSON loads a registry from JSON data.
// Accepts either a document with a "providers" key or the registry config itself.
func LoadFromJSON(data []byte) (*Registry, error) {
	var wrapped struct {
		Providers *RegistryConfig `json:"providers"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Providers != nil {
		return NewRegistryFromConfig(wrapped.Providers), nil
	}

	var cfg RegistryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse registry config: %w", err)
	}

	return NewRegistryFromConfig(&cfg), nil
}

// ToConfig converts a Registry to a RegistryConfig for serialization.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg := &RegistryConfig{
		Primary:   r.endpoints[SlotPrimary],
		Secondary: r.endpoints[SlotSecondary],
	}
	if r.health != nil {
		r.health.mu.RLock()
		hc := r.health.config
		r.health.mu.RUnlock()
		cfg.Health = &hc
	}
	return cfg
}

// MergeFromConfig overwrites the slots present in cfg. Absent slots are kept.
func (r *Registry) MergeFromConfig(cfg *RegistryConfig) {
	if cfg == nil {
		return
	}
	for slot, ep := range cfg.Endpoints() {
		r.SetEndpoint(slot, ep)
	}
	if cfg.Health != nil {
		r.SetHealthConfig(*cfg.Health)
	}
}
