// Package httpapi is the JSON-over-HTTP plumbing shared by the embedding and
// rerank adapters: rate limiting, retry on throttling, and coded errors.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/oops"
)

// Defaults applied by New.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
	DefaultBackoff    = 2 * time.Second
	maxErrorBody      = 4 << 10
)

// Client performs rate-limited JSON requests against one service.
type Client struct {
	service     string
	http        *http.Client
	limiter     *RateLimiter
	maxRetries  int
	unavailable error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithMaxRetries sets how often a throttled request is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRateLimit throttles to rps requests per second. backoff is used after a
// 429 without a Retry-After header.
func WithRateLimit(rps float64, backoff time.Duration) Option {
	return func(c *Client) {
		c.limiter = NewRateLimiter(rps, 1, backoff)
	}
}

// New creates a client for service. Failures to reach the service wrap unavailable.
func New(service string, timeout time.Duration, unavailable error, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		service:     service,
		http:        &http.Client{Timeout: timeout},
		limiter:     NewRateLimiter(0, 1, DefaultBackoff),
		maxRetries:  DefaultMaxRetries,
		unavailable: unavailable,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the service name used in error codes.
func (c *Client) Service() string {
	return c.service
}

// Request describes one call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Do sends req and decodes a JSON response into out (which may be nil).
// 429 and 503 responses are retried after the backoff window.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return oops.Code(c.service+".encode").In(c.service).Wrapf(err, "marshal request")
		}
		payload = b
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.once(ctx, req, payload, out)
		se, ok := err.(*StatusError)
		if !ok || !retryable(se.StatusCode) || attempt >= c.maxRetries {
			return c.wrap(err, req.URL)
		}
	}
}

func (c *Client) once(ctx context.Context, req Request, payload []byte, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return err
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.RecordRateLimitError(retryAfter(resp.Header.Get("Retry-After")))
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// wrap attaches the service code and the unavailable sentinel.
func (c *Client) wrap(err error, url string) error {
	if err == nil {
		return nil
	}
	code := c.service + ".unavailable"
	if se, ok := err.(*StatusError); ok {
		code = fmt.Sprintf("%s.status_%d", c.service, se.StatusCode)
	}
	return oops.Code(code).In(c.service).
		With("url", url).
		Wrap(fmt.Errorf("%w: %w", c.unavailable, err))
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
