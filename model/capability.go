// Package model describes the provider slots the gateway can call and tracks their health.
// A deployment configures a primary and optionally a secondary endpoint; the gateway tries
// them in that order.
package model

import "fmt"

// Slot names a provider position in the failover order.
type Slot string

const (
	// SlotPrimary is tried first.
	SlotPrimary Slot = "primary"

	// SlotSecondary is tried when the primary fails or is not configured.
	SlotSecondary Slot = "secondary"
)

// Slots lists every slot in failover order.
var Slots = []Slot{SlotPrimary, SlotSecondary}

// IsValid checks if a slot string is known.
func (s Slot) IsValid() bool {
	return s == SlotPrimary || s == SlotSecondary
}

// String returns the string representation of the slot.
func (s Slot) String() string {
	return string(s)
}

// ParseSlot converts a string to a Slot.
func ParseSlot(s string) (Slot, error) {
	slot := Slot(s)
	if !slot.IsValid() {
		return "", fmt.Errorf("unknown provider slot %q", s)
	}
	return slot, nil
}

// Capability is an optional feature an endpoint supports.
type Capability string

const (
	// CapabilityBackground means the endpoint accepts asynchronous requests
	// that return a handle to poll.
	CapabilityBackground Capability = "background"

	// CapabilityWebSearch means the endpoint can ground answers with web search.
	CapabilityWebSearch Capability = "web_search"
)

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityBackground, CapabilityWebSearch:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}
