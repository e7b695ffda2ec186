package poller

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// DefaultTimeout is the per-request timeout applied when a [Request] leaves
// Timeout unset.
const DefaultTimeout = 10 * time.Second

// connection pooling limits; a NAS is a single host, so per-host limits dominate
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Request describes a single HTTP call made by [Client.Fetch].
type Request struct {
	// Method is the HTTP method. Empty defaults to GET.
	Method string

	// URL is the full target URL including query string.
	URL string

	// Headers are set on the outgoing request.
	Headers map[string]string

	// Body is sent as the request body when non-nil.
	Body []byte

	// Timeout bounds the whole exchange. Zero uses [DefaultTimeout].
	Timeout time.Duration
}

// Response holds the result of an HTTP request made by [Client].
//
// Response captures the body (limited to 1MB), status code, latency, and any
// error that occurred.
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code.
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request.
	// nil indicates the request completed (though status may indicate an error).
	Error error
}

// ClientOption configures a [Client].
type ClientOption func(*http.Transport)

// WithInsecureSkipVerify disables TLS certificate verification. UGREEN
// devices ship self-signed certificates, so verification is commonly off.
func WithInsecureSkipVerify(skip bool) ClientOption {
	return func(t *http.Transport) {
		if !skip {
			return
		}
		if t.TLSClientConfig == nil {
			t.TLSClientConfig = &tls.Config{}
		}
		t.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // user opt-in for self-signed NAS certificates
	}
}

// Client is an HTTP client wrapper for polling the NAS API.
//
// Client uses per-request timeouts via context rather than a global timeout.
// Response bodies are limited to 1MB.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new polling [Client].
//
// Timeouts are applied per-request via [Request.Timeout], not as a global
// client timeout.
func NewClient(opts ...ClientOption) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		DisableKeepAlives:   false,
	}
	for _, opt := range opts {
		opt(transport)
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
	}
}

// Fetch performs an HTTP request and returns a structured [Response].
//
// Fetch always returns a Response; errors are captured in the Error field
// rather than returned separately.
func (c *Client) Fetch(ctx context.Context, r Request) Response {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	fail := func(status int, err error) Response {
		return Response{StatusCode: status, Latency: time.Since(start), Error: err}
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return fail(0, fmt.Errorf("failed to create request: %w", err))
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}

	return Response{
		Body:       data,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times; the client remains usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
