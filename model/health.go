package model

import (
	"sync"
	"time"
)

// EndpointHealth tracks the health status of a slot's endpoint.
type EndpointHealth struct {
	// Available indicates if the endpoint is currently usable.
	Available bool `json:"available"`

	// LastSuccess is the time of the last successful request.
	LastSuccess time.Time `json:"last_success,omitempty"`

	// LastFailure is the time of the last failed request.
	LastFailure time.Time `json:"last_failure,omitempty"`

	// FailureCount is the number of consecutive failures.
	FailureCount int `json:"failure_count"`

	// CircuitOpen indicates if the circuit breaker has tripped.
	CircuitOpen bool `json:"circuit_open"`

	// CircuitOpenedAt is when the circuit was opened.
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig configures the health tracking behavior.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	// Zero disables the breaker.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`

	// RecoveryTimeout is how long an open circuit rejects calls before a trial call.
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`
}

// DefaultHealthConfig returns sensible defaults for health tracking.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// healthState stores slot health information.
type healthState struct {
	mu       sync.RWMutex
	config   HealthConfig
	statuses map[Slot]*EndpointHealth
	now      func() time.Time
}

func newHealthState(cfg HealthConfig) *healthState {
	return &healthState{
		config:   cfg,
		statuses: make(map[Slot]*EndpointHealth),
		now:      time.Now,
	}
}

// getOrCreate returns the status for a slot. Caller holds h.mu.
func (h *healthState) getOrCreate(slot Slot) *EndpointHealth {
	if status, ok := h.statuses[slot]; ok {
		return status
	}
	status := &EndpointHealth{Available: true}
	h.statuses[slot] = status
	return status
}

func (r *Registry) healthState() *healthState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.health == nil {
		r.health = newHealthState(DefaultHealthConfig())
	}
	return r.health
}

// MarkEndpointSuccess records a successful call through a slot and closes its circuit.
func (r *Registry) MarkEndpointSuccess(slot Slot) {
	h := r.healthState()

	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.getOrCreate(slot)
	status.LastSuccess = h.now()
	status.FailureCount = 0
	status.Available = true
	status.CircuitOpen = false
}

// MarkEndpointFailure records a failed call through a slot.
func (r *Registry) MarkEndpointFailure(slot Slot) {
	h := r.healthState()

	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.getOrCreate(slot)
	status.LastFailure = h.now()
	status.FailureCount++

	// Check if we should open (or re-open after a failed trial) the circuit
	if h.config.FailureThreshold > 0 && status.FailureCount >= h.config.FailureThreshold {
		status.CircuitOpen = true
		status.CircuitOpenedAt = h.now()
		status.Available = false
	}
}

// IsEndpointAvailable reports whether a slot may be called. An open circuit
// becomes available again (half-open) once the recovery timeout has passed.
func (r *Registry) IsEndpointAvailable(slot Slot) bool {
	h := r.healthState()

	h.mu.RLock()
	defer h.mu.RUnlock()

	status, ok := h.statuses[slot]
	if !ok || !status.CircuitOpen {
		return true
	}
	return h.now().Sub(status.CircuitOpenedAt) > h.config.RecoveryTimeout
}

// GetEndpointHealth returns a copy of a slot's health, or nil if nothing was recorded.
func (r *Registry) GetEndpointHealth(slot Slot) *EndpointHealth {
	h := r.healthState()

	h.mu.RLock()
	defer h.mu.RUnlock()

	if status, ok := h.statuses[slot]; ok {
		cp := *status
		return &cp
	}
	return nil
}

// SetHealthConfig updates the health tracking configuration.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	h := r.healthState()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.config = cfg
}

// ResetEndpointHealth clears the health status for a slot.
func (r *Registry) ResetEndpointHealth(slot Slot) {
	h := r.healthState()

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.statuses, slot)
}
