package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/c360studio/newsdesk/model"
)

// maxResponseSize limits the provider response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Backend performs one model call for a slot.
type Backend interface {
	// Name identifies the backend in logs and call records.
	Name() string

	// Call sends the request once. A response may be non-terminal (pending).
	Call(ctx context.Context, req Request) (*Response, error)
}

// StatusFetcher re-reads a background response by handle.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, handleID string) (*Response, error)
}

// HTTPBackend calls an endpoint over HTTP through a Provider adapter.
type HTTPBackend struct {
	endpoint   *model.EndpointConfig
	provider   Provider
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// BackendOption configures an HTTPBackend.
type BackendOption func(*HTTPBackend)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) BackendOption {
	return func(b *HTTPBackend) {
		b.httpClient = c
	}
}

// WithBackendLogger sets the logger.
func WithBackendLogger(logger *slog.Logger) BackendOption {
	return func(b *HTTPBackend) {
		b.logger = logger
	}
}

// WithAPIKey sets the API key directly instead of reading the environment.
func WithAPIKey(key string) BackendOption {
	return func(b *HTTPBackend) {
		b.apiKey = key
	}
}

// NewHTTPBackend creates a backend for an endpoint. It fails fast when the
// provider is unknown or its API key is missing.
func NewHTTPBackend(ep *model.EndpointConfig, opts ...BackendOption) (*HTTPBackend, error) {
	if ep == nil {
		return nil, NewFatalError(fmt.Errorf("endpoint config required"))
	}

	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	b := &HTTPBackend{
		endpoint: ep,
		provider: provider,
		httpClient: &http.Client{
			Timeout:   180 * time.Second, // Allow time for model responses
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.apiKey == "" {
		envVar := ep.APIKeyEnv
		if envVar == "" {
			envVar = provider.DefaultAPIKeyEnv()
		}
		if envVar != "" {
			b.apiKey = os.Getenv(envVar)
			if b.apiKey == "" {
				return nil, NewFatalError(fmt.Errorf("%w: %s is not set for %s", ErrMissingCredentials, envVar, ep.Provider))
			}
		}
	}

	return b, nil
}

// Name returns "<provider>/<model>".
func (b *HTTPBackend) Name() string {
	return b.provider.Name() + "/" + b.endpoint.Model
}

// Endpoint returns the endpoint configuration.
func (b *HTTPBackend) Endpoint() *model.EndpointConfig {
	return b.endpoint
}

func (b *HTTPBackend) callOptions(req Request) CallOptions {
	opts := CallOptions{
		Model:     b.endpoint.Model,
		MaxTokens: b.endpoint.MaxTokens,
		WebSearch: req.WebSearch && b.endpoint.Supports(model.CapabilityWebSearch),
	}
	if req.ModelHint != "" {
		opts.Model = req.ModelHint
	}
	if req.MaxOutputTokens > 0 {
		opts.MaxTokens = req.MaxOutputTokens
	}
	if _, ok := b.provider.(BackgroundProvider); ok {
		opts.Background = b.endpoint.Supports(model.CapabilityBackground)
	}
	return opts
}

// Call sends one request to the endpoint.
func (b *HTTPBackend) Call(ctx context.Context, req Request) (*Response, error) {
	opts := b.callOptions(req)

	body, err := b.provider.BuildRequestBody(req, opts)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	url := b.provider.BuildURL(b.endpoint.URL)

	b.logger.Debug("Sending model request",
		"provider", b.provider.Name(),
		"model", opts.Model,
		"url", url,
		"background", opts.Background,
		"web_search", opts.WebSearch)

	respBody, err := b.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}

	resp, err := b.provider.ParseResponse(respBody, opts.Model)
	if err != nil {
		return nil, NewTransientError(err)
	}
	return resp, nil
}

// FetchStatus re-reads a background response.
func (b *HTTPBackend) FetchStatus(ctx context.Context, handleID string) (*Response, error) {
	bp, ok := b.provider.(BackgroundProvider)
	if !ok {
		return nil, NewFatalError(fmt.Errorf("%w: %s", ErrPollUnsupported, b.provider.Name()))
	}

	respBody, err := b.do(ctx, http.MethodGet, bp.BuildStatusURL(b.endpoint.URL, handleID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := bp.ParseResponse(respBody, b.endpoint.Model)
	if err != nil {
		return nil, NewTransientError(err)
	}
	if resp.HandleID == "" {
		resp.HandleID = handleID
	}
	return resp, nil
}

// do executes a single HTTP request and returns the body of a 2xx response.
func (b *HTTPBackend) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	b.provider.SetHeaders(httpReq, b.apiKey)

	httpResp, err := b.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	// Read response body with size limit to prevent memory exhaustion
	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}
	return respBody, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("provider API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout:
		// Rate limiting and timeouts are transient
		return NewTransientError(err)
	case statusCode >= 500:
		// Server errors are transient
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal
		return NewFatalError(err)
	default:
		// Bad requests and unknown errors are fatal
		return NewFatalError(err)
	}
}
