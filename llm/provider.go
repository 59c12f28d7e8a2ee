package llm

import (
	"net/http"
	"sort"
	"sync"
)

// CallOptions carries endpoint-dependent settings into request building.
type CallOptions struct {
	// Model is the model identifier to send.
	Model string

	// MaxTokens is the output token limit. 0 uses the provider default.
	MaxTokens int

	// Background asks for an asynchronous response that returns a handle.
	Background bool

	// WebSearch enables the provider's web search tool.
	WebSearch bool
}

// Provider defines the interface for model provider adapters.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "ollama").
	Name() string

	// DefaultAPIKeyEnv names the environment variable read when the endpoint
	// does not set one. Empty means the provider needs no key.
	DefaultAPIKeyEnv() string

	// BuildURL constructs the full API endpoint URL.
	BuildURL(baseURL string) string

	// SetHeaders adds provider-specific headers to the request.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody creates the JSON request body for the provider.
	BuildRequestBody(req Request, opts CallOptions) ([]byte, error)

	// ParseResponse extracts the response from provider-specific JSON.
	// It sets Status and, for background requests, HandleID.
	ParseResponse(body []byte, model string) (*Response, error)
}

// BackgroundProvider is a Provider whose responses can be fetched again by handle.
type BackgroundProvider interface {
	Provider

	// BuildStatusURL constructs the URL that re-reads a response by handle.
	BuildStatusURL(baseURL, handleID string) string
}

// providerRegistry holds registered providers.
var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names, sorted.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
