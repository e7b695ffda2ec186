// Package nasapi talks to the UGREEN NAS HTTP JSON API.
//
// Every data request carries the session token as a query parameter. When
// the NAS answers with code 1024 the client authenticates once against the
// token service and retries the request once. All failures degrade to an
// empty [Document]; nothing in this package panics or blocks past the
// request timeout.
package nasapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/nasbridge/internal/poller"
)

// CodeOK and CodeTokenExpired are vendor status codes carried in the "code"
// field of every response.
const (
	CodeOK           = 200
	CodeTokenExpired = 1024
)

// DefaultTimeout bounds each data request.
const DefaultTimeout = 10 * time.Second

// DefaultAuthTimeout bounds a token request. The token service drives a
// browser login, which routinely takes longer than a data request.
const DefaultAuthTimeout = 60 * time.Second

var (
	// ErrTokenExpired is reported by [Response.Check] for a response that
	// still carries code 1024 after the single retry.
	ErrTokenExpired = errors.New("token expired")

	// ErrAuthFailed is returned when the token service rejects the
	// credentials or cannot be reached.
	ErrAuthFailed = errors.New("authentication failed")
)

// Config holds the NAS connection settings.
type Config struct {
	Host     string
	Port     int
	AuthPort int
	Username string
	Password string

	// UseHTTPS selects https for data requests. The token service is always
	// reached over plain http.
	UseHTTPS bool

	// VerifyTLS enables certificate verification.
	VerifyTLS bool

	// Token seeds the session. Empty means authenticate before first use.
	Token string
}

// Observer receives request outcomes. It is implemented by the telemetry
// package; a nil Observer is ignored.
type Observer interface {
	ObserveRequest(endpoint string, outcome string, latency time.Duration)
	ObserveAuth(ok bool)
}

// Response is the outcome of one API call.
type Response struct {
	// Doc is the decoded body. Empty on any failure.
	Doc Document

	// StatusCode is the HTTP status code, zero when no response arrived.
	StatusCode int

	// Latency covers the whole call including a retry.
	Latency time.Duration

	// Err describes why Doc is empty.
	Err error
}

// Check returns Err, or [ErrTokenExpired] when the document still reports
// an expired token, or nil.
func (r Response) Check() error {
	if r.Err != nil {
		return r.Err
	}
	if r.Doc.Code() == CodeTokenExpired {
		return ErrTokenExpired
	}
	return nil
}

// Option configures a [Client].
type Option func(*Client) error

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithAuthTimeout overrides the token request timeout.
func WithAuthTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("auth timeout must be positive, got %v", d)
		}
		c.authTimeout = d
		return nil
	}
}

// WithTransport replaces the pooled HTTP client.
func WithTransport(t *poller.Client) Option {
	return func(c *Client) error {
		if t == nil {
			return errors.New("transport cannot be nil")
		}
		c.http = t
		return nil
	}
}

// WithBaseURL overrides the data API base URL derived from [Config].
func WithBaseURL(u string) Option {
	return func(c *Client) error {
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("invalid base URL %q: %w", u, err)
		}
		c.baseURL = strings.TrimRight(u, "/")
		return nil
	}
}

// WithAuthURL overrides the token service URL derived from [Config].
func WithAuthURL(u string) Option {
	return func(c *Client) error {
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("invalid auth URL %q: %w", u, err)
		}
		c.authURL = strings.TrimRight(u, "/")
		return nil
	}
}

// WithObserver attaches request metrics.
func WithObserver(o Observer) Option {
	return func(c *Client) error {
		c.observer = o
		return nil
	}
}

// Client is a session-holding NAS API client. It is safe for concurrent use.
type Client struct {
	baseURL     string
	authURL     string
	username    string
	password    string
	timeout     time.Duration
	authTimeout time.Duration
	http        *poller.Client
	logger      *slog.Logger
	observer    Observer

	mu    sync.RWMutex
	token string
}

// NewClient creates a [Client] from cfg.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	scheme := "http"
	if cfg.UseHTTPS {
		scheme = "https"
	}

	c := &Client{
		username:    cfg.Username,
		password:    cfg.Password,
		token:       cfg.Token,
		timeout:     DefaultTimeout,
		authTimeout: DefaultAuthTimeout,
		logger:      slog.Default(),
	}
	if cfg.Host != "" {
		c.baseURL = fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
		c.authURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.AuthPort)
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("nasapi option: %w", err)
		}
	}

	if c.baseURL == "" {
		return nil, errors.New("nasapi: host is required")
	}
	if c.http == nil {
		c.http = poller.NewClient(poller.WithInsecureSkipVerify(!cfg.VerifyTLS))
	}

	return c, nil
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Authenticate asks the token service for a fresh token and stores it.
// It reports false on transport errors, non-2xx responses, a code other
// than 200 or a missing token.
func (c *Client) Authenticate(ctx context.Context) bool {
	err := c.authenticate(ctx)
	c.observeAuth(err == nil)
	if err != nil {
		c.logger.Warn("authentication failed", "error", err)
		return false
	}
	c.logger.Info("token received")
	return true
}

func (c *Client) authenticate(ctx context.Context) error {
	target := fmt.Sprintf("%s/token?username=%s&password=%s",
		c.authURL, url.QueryEscape(c.username), url.QueryEscape(c.password))

	resp := c.http.Fetch(ctx, poller.Request{URL: target, Timeout: c.authTimeout})
	if resp.Error != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, resp.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: token service returned status %d", ErrAuthFailed, resp.StatusCode)
	}

	doc := NewDocument(resp.Body)
	if doc.Empty() {
		return fmt.Errorf("%w: invalid token service response", ErrAuthFailed)
	}
	if code := doc.Code(); code != CodeOK {
		return fmt.Errorf("%w: token service returned code %d", ErrAuthFailed, code)
	}
	token, ok := doc.Get("data.token")
	if !ok || token.String() == "" {
		return fmt.Errorf("%w: token missing from response", ErrAuthFailed)
	}

	c.setToken(token.String())
	return nil
}

// Get performs a GET against endpoint, which is a path plus optional query
// string such as "/ugreen/v1/desktop/components/data?id=x".
func (c *Client) Get(ctx context.Context, endpoint string) Response {
	return c.Do(ctx, http.MethodGet, endpoint, nil)
}

// Post performs a POST with payload encoded as JSON. A nil payload sends {}.
func (c *Client) Post(ctx context.Context, endpoint string, payload any) Response {
	if payload == nil {
		payload = struct{}{}
	}
	return c.Do(ctx, http.MethodPost, endpoint, payload)
}

// Do performs a request with the token-expiry retry. A response still
// carrying code 1024 after the retry is returned unchanged.
func (c *Client) Do(ctx context.Context, method, endpoint string, payload any) Response {
	start := time.Now()

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return c.fail(endpoint, start, 0, fmt.Errorf("failed to encode payload: %w", err))
		}
		body = b
	}

	resp := c.send(ctx, method, endpoint, body)
	if resp.Err == nil && resp.Doc.Code() == CodeTokenExpired {
		c.logger.Warn("token expired, refreshing", "endpoint", endpoint)
		if !c.Authenticate(ctx) {
			return c.fail(endpoint, start, resp.StatusCode, fmt.Errorf("%s: token refresh: %w", endpoint, ErrAuthFailed))
		}
		resp = c.send(ctx, method, endpoint, body)
	}

	resp.Latency = time.Since(start)
	switch {
	case resp.Err != nil:
		c.logger.Warn("request failed", "endpoint", endpoint, "method", method, "error", resp.Err)
		c.observe(endpoint, "error", resp.Latency)
	case resp.Doc.Code() == CodeTokenExpired:
		c.observe(endpoint, "expired", resp.Latency)
	default:
		c.observe(endpoint, "ok", resp.Latency)
	}
	return resp
}

// send performs exactly one HTTP exchange with the token captured at start.
func (c *Client) send(ctx context.Context, method, endpoint string, body []byte) Response {
	req := poller.Request{
		Method:  method,
		URL:     withToken(c.baseURL+endpoint, c.Token()),
		Body:    body,
		Timeout: c.timeout,
	}
	if body != nil {
		req.Headers = map[string]string{"Content-Type": "application/json"}
	}

	c.logger.Debug("sending request", "method", method, "endpoint", endpoint)
	r := c.http.Fetch(ctx, req)
	if r.Error != nil {
		return Response{StatusCode: r.StatusCode, Latency: r.Latency, Err: r.Error}
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return Response{StatusCode: r.StatusCode, Latency: r.Latency, Err: fmt.Errorf("unexpected status %d", r.StatusCode)}
	}

	doc := NewDocument(r.Body)
	if len(doc.Raw()) == 0 {
		return Response{StatusCode: r.StatusCode, Latency: r.Latency, Err: errors.New("response is not valid JSON")}
	}
	return Response{Doc: doc, StatusCode: r.StatusCode, Latency: r.Latency}
}

func (c *Client) fail(endpoint string, start time.Time, status int, err error) Response {
	resp := Response{StatusCode: status, Latency: time.Since(start), Err: err}
	c.logger.Warn("request failed", "endpoint", endpoint, "error", err)
	c.observe(endpoint, "error", resp.Latency)
	return resp
}

func (c *Client) observe(endpoint, outcome string, latency time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, outcome, latency)
	}
}

func (c *Client) observeAuth(ok bool) {
	if c.observer != nil {
		c.observer.ObserveAuth(ok)
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.http.Close()
}

// withToken appends token to rawURL using ? or & as appropriate.
func withToken(rawURL, token string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "token=" + url.QueryEscape(token)
}
