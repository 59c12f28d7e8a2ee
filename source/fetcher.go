// Package source fetches release-notes and changelog pages and turns them into
// markdown that can be placed in a prompt.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html/charset"
)

// Fetcher defaults.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultUserAgent      = "newsdesk/1.0 (+https://github.com/c360studio/newsdesk)"
	DefaultMaxContentSize = 5 * 1024 * 1024
	maxRedirects          = 5
)

// ErrTooLarge means the body exceeded the size limit.
var ErrTooLarge = errors.New("content too large")

// Page is a fetched document decoded to UTF-8.
type Page struct {
	URL          string
	Body         string
	ContentType  string
	ETag         string
	LastModified time.Time
	NotModified  bool
}

// Fetcher retrieves pages with SSRF protection: only public HTTPS hosts are
// reachable, resolved addresses are re-checked at dial time, and redirects are
// validated and limited.
type Fetcher struct {
	client         *http.Client
	userAgent      string
	maxContentSize int64
	timeout        time.Duration
	allowPrivate   bool
	logger         *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxContentSize sets the body size limit in bytes.
func WithMaxContentSize(n int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxContentSize = n
	}
}

// WithPrivateHosts disables the SSRF guard. Only for local development and tests.
func WithPrivateHosts() FetcherOption {
	return func(f *Fetcher) {
		f.allowPrivate = true
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		userAgent:      DefaultUserAgent,
		maxContentSize: DefaultMaxContentSize,
		timeout:        DefaultTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: f.timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	if !f.allowPrivate {
		transport.DialContext = safeDialContext(dialer)
	}

	f.client = &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   f.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			if f.allowPrivate {
				return nil
			}
			if err := ValidateURL(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}
	return f
}

// safeDialContext validates resolved IPs to prevent DNS rebinding.
func safeDialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup failed: %w", err)
		}
		for _, ipAddr := range ips {
			if IsPrivateIP(ipAddr.IP) {
				return nil, fmt.Errorf("connection to private IP %s is not allowed", ipAddr.IP)
			}
		}

		for _, ipAddr := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
			if err == nil {
				return conn, nil
			}
		}
		return nil, fmt.Errorf("failed to connect to any resolved IP")
	}
}

// Fetch retrieves a page.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	return f.FetchWithETag(ctx, rawURL, "")
}

// FetchWithETag retrieves a page conditionally. A 304 yields a Page with
// NotModified set and no body.
func (f *Fetcher) FetchWithETag(ctx context.Context, rawURL, etag string) (*Page, error) {
	if !f.allowPrivate {
		if err := ValidateURL(rawURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/markdown,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	page := &Page{
		URL:         rawURL,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			page.LastModified = t
		}
	}

	if resp.StatusCode == http.StatusNotModified {
		page.NotModified = true
		return page, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxContentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxContentSize {
		return nil, fmt.Errorf("%w (exceeds %d bytes)", ErrTooLarge, f.maxContentSize)
	}

	text, err := decode(body, page.ContentType)
	if err != nil {
		return nil, err
	}
	page.Body = text

	f.logger.Debug("Fetched source page",
		"url", rawURL,
		"bytes", len(body),
		"content_type", page.ContentType)

	return page, nil
}

// decode converts the body to UTF-8 using the declared or sniffed charset.
func decode(body []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		// Unknown charset label: keep the raw bytes.
		return string(body), nil
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	return string(out), nil
}
