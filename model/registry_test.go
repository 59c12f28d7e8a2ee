package model

import (
	"encoding/json"
	"testing"
)

func testRegistry() *Registry {
	return NewRegistry(map[Slot]*EndpointConfig{
		SlotPrimary: {
			Provider:     "openai",
			Model:        "gpt-4.1",
			APIKeyEnv:    "OPENAI_API_KEY",
			Capabilities: []Capability{CapabilityBackground, CapabilityWebSearch},
		},
		SlotSecondary: {
			Provider: "ollama",
			URL:      "http://localhost:11434/v1",
			Model:    "qwen2.5:14b",
		},
	})
}

func TestRegistryGetEndpoint(t *testing.T) {
	r := testRegistry()

	primary := r.GetEndpoint(SlotPrimary)
	if primary == nil {
		t.Fatal("expected primary endpoint")
	}
	if primary.Provider != "openai" {
		t.Errorf("expected openai, got %q", primary.Provider)
	}
	if !primary.Supports(CapabilityBackground) {
		t.Error("expected primary to support background")
	}

	secondary := r.GetEndpoint(SlotSecondary)
	if secondary == nil {
		t.Fatal("expected secondary endpoint")
	}
	if secondary.Supports(CapabilityWebSearch) {
		t.Error("expected secondary to not support web search")
	}

	var nilEndpoint *EndpointConfig
	if nilEndpoint.Supports(CapabilityBackground) {
		t.Error("nil endpoint should support nothing")
	}
}

func TestRegistryConfiguredSlots(t *testing.T) {
	tests := []struct {
		name      string
		endpoints map[Slot]*EndpointConfig
		want      []Slot
	}{
		{"none", nil, []Slot{}},
		{"primary only", map[Slot]*EndpointConfig{SlotPrimary: {Provider: "a", Model: "m"}}, []Slot{SlotPrimary}},
		{"secondary only", map[Slot]*EndpointConfig{SlotSecondary: {Provider: "a", Model: "m"}}, []Slot{SlotSecondary}},
		{"both", map[Slot]*EndpointConfig{
			SlotSecondary: {Provider: "b", Model: "m"},
			SlotPrimary:   {Provider: "a", Model: "m"},
		}, []Slot{SlotPrimary, SlotSecondary}},
		{"nil entry ignored", map[Slot]*EndpointConfig{SlotPrimary: nil}, []Slot{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRegistry(tt.endpoints).ConfiguredSlots()
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("slot %d: expected %s, got %s", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestRegistrySetEndpoint(t *testing.T) {
	r := NewRegistry(nil)

	r.SetEndpoint(SlotSecondary, &EndpointConfig{Provider: "anthropic", Model: "claude"})
	if r.GetEndpoint(SlotSecondary) == nil {
		t.Fatal("expected secondary after SetEndpoint")
	}

	r.SetEndpoint(SlotSecondary, nil)
	if r.GetEndpoint(SlotSecondary) != nil {
		t.Error("expected secondary cleared")
	}
}

func TestRegistryValidate(t *testing.T) {
	r := testRegistry()
	if err := r.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	r.SetEndpoint(SlotSecondary, &EndpointConfig{Provider: "ollama"})
	if err := r.Validate(); err == nil {
		t.Error("expected error for missing model")
	}

	r.SetEndpoint(SlotSecondary, &EndpointConfig{Provider: "ollama", Model: "m", Capabilities: []Capability{"telepathy"}})
	if err := r.Validate(); err == nil {
		t.Error("expected error for unknown capability")
	}
}

func TestParseSlot(t *testing.T) {
	if s, err := ParseSlot("primary"); err != nil || s != SlotPrimary {
		t.Errorf("ParseSlot(primary) = %q, %v", s, err)
	}
	if _, err := ParseSlot("tertiary"); err == nil {
		t.Error("expected error for unknown slot")
	}
}

func TestRegistryJSONRoundTrip(t *testing.T) {
	r := testRegistry()

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var restored Registry
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := restored.GetEndpoint(SlotPrimary); got == nil || got.Model != "gpt-4.1" {
		t.Errorf("primary not restored: %+v", got)
	}
	if got := restored.GetEndpoint(SlotSecondary); got == nil || got.URL != "http://localhost:11434/v1" {
		t.Errorf("secondary not restored: %+v", got)
	}
	if !restored.IsEndpointAvailable(SlotPrimary) {
		t.Error("restored registry should start healthy")
	}
}
