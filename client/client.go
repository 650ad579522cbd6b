// Package client is the HTTP transport for the Homly storefront API. It
// attaches the bearer token, unwraps the {success, data, token, message}
// response envelope, and broadcasts an events.Unauthorized signal whenever
// the server rejects a request with 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/homly/events"
)

const (
	// DefaultBaseURL is the API root used for local development.
	DefaultBaseURL = "http://127.0.0.1:5000/api"
	// DefaultTimeout bounds every request.
	DefaultTimeout = 15 * time.Second

	maxResponseBody = 8 << 20
	userAgent       = "homly-go/1.0"
)

// TokenSource supplies the bearer token for outgoing requests. An empty
// string means no Authorization header is sent.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Response is the envelope the API wraps every payload in.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
	Count   int    `json:"count,omitempty"`
	Total   int    `json:"total,omitempty"`
	Page    int    `json:"page,omitempty"`
	Pages   int    `json:"pages,omitempty"`
}

// Client talks to one Homly API deployment.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	bus     *events.Bus
	logger  *slog.Logger

	mu     sync.RWMutex
	tokens TokenSource
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithBus sets the bus authorization failures are broadcast on.
func WithBus(bus *events.Bus) Option {
	return func(c *Client) {
		c.bus = bus
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger sets the structured logger for request failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout, Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	c.logger = c.logger.With("component", "client")
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetTokenSource replaces the token source after construction. The session
// manager is usually created after the client it depends on.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return ""
	}
	return ts.Token()
}

// call performs one request and decodes the response envelope into
// Response[T].
func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any) (*Response[T], error) {
	raw, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	var resp Response[T]
	if len(bytes.TrimSpace(raw)) == 0 {
		return &resp, nil
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encoding request: %w", method, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	token := c.token()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "request failed",
			"method", method, "url", u.String(), "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	apiErr := &APIError{
		Status: resp.StatusCode,
		Method: method,
		URL:    u.String(),
	}
	if json.Valid(data) {
		apiErr.Data = json.RawMessage(data)
		var body struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(data, &body) == nil {
			apiErr.Message = body.Message
			if apiErr.Message == "" {
				apiErr.Message = body.Error
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	c.logger.WarnContext(ctx, "api error",
		"method", method,
		"url", u.String(),
		"status", resp.StatusCode,
		"message", apiErr.Message,
		"has_auth_token", token != "",
	)

	if resp.StatusCode == http.StatusUnauthorized && c.bus != nil {
		c.logger.WarnContext(ctx, "session expired or unauthorized; broadcasting", "url", u.String())
		c.bus.Unauthorized.Publish(events.Unauthorized{
			Method: method,
			Path:   path,
			URL:    u.String(),
			Token:  events.TokenFingerprint(token),
			At:     time.Now(),
		})
	}
	return nil, apiErr
}

// IsTimeout reports whether err is a client-side deadline or timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func escape(id string) string {
	return url.PathEscape(id)
}
