package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// EndpointConfig defines a model endpoint bound to a slot.
type EndpointConfig struct {
	// Provider is the adapter name (anthropic, ollama, openai).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API base URL. Empty uses the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model" yaml:"model"`

	// MaxTokens is the default output token limit.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`

	// Capabilities lists optional features of this endpoint.
	Capabilities []Capability `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// Supports reports whether the endpoint declares a capability.
func (e *EndpointConfig) Supports(c Capability) bool {
	if e == nil {
		return false
	}
	return slices.Contains(e.Capabilities, c)
}

// Validate checks required fields.
func (e *EndpointConfig) Validate() error {
	if e.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if e.Model == "" {
		return fmt.Errorf("model is required")
	}
	for _, c := range e.Capabilities {
		if !c.IsValid() {
			return fmt.Errorf("unknown capability %q", c)
		}
	}
	return nil
}

// Registry maps slots to endpoints and tracks endpoint health.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[Slot]*EndpointConfig
	health    *healthState
}

// NewRegistry creates a registry with the given slot endpoints.
func NewRegistry(endpoints map[Slot]*EndpointConfig) *Registry {
	r := &Registry{
		endpoints: make(map[Slot]*EndpointConfig, len(endpoints)),
		health:    newHealthState(DefaultHealthConfig()),
	}
	for slot, cfg := range endpoints {
		if cfg != nil {
			r.endpoints[slot] = cfg
		}
	}
	return r
}

// GetEndpoint returns the endpoint for a slot, or nil if the slot is empty.
func (r *Registry) GetEndpoint(slot Slot) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoints[slot]
}

// SetEndpoint binds or clears (nil) a slot.
func (r *Registry) SetEndpoint(slot Slot, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg == nil {
		delete(r.endpoints, slot)
		return
	}
	r.endpoints[slot] = cfg
}

// ConfiguredSlots returns the bound slots in failover order.
func (r *Registry) ConfiguredSlots() []Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slots := make([]Slot, 0, len(Slots))
	for _, s := range Slots {
		if _, ok := r.endpoints[s]; ok {
			slots = append(slots, s)
		}
	}
	return slots
}

// Validate checks every bound endpoint.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range Slots {
		if cfg, ok := r.endpoints[s]; ok {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%s endpoint: %w", s, err)
			}
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler for the registry.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToConfig())
}

// UnmarshalJSON implements json.Unmarshaler for the registry.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var cfg RegistryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints = make(map[Slot]*EndpointConfig)
	if cfg.Primary != nil {
		r.endpoints[SlotPrimary] = cfg.Primary
	}
	if cfg.Secondary != nil {
		r.endpoints[SlotSecondary] = cfg.Secondary
	}
	if r.health == nil {
		r.health = newHealthState(DefaultHealthConfig())
	}
	return nil
}
