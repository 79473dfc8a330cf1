package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/KoushikPanda1729/client-ui/internal/platform/requestctx"
)

const (
	defaultTimeout         = 15 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
	maxResponseBytes       = 2 << 20
)

var errServerStatus = errors.New("upstream: server error status")

// Config configures a Client for one backend service.
type Config struct {
	Name            string
	BaseURL         string
	Timeout         time.Duration
	Transport       http.RoundTripper
	BreakerFailures uint32
	BreakerCooldown time.Duration
	OnBreakerChange func(name, from, to string)
}

// Client performs JSON calls against one backend service through a shared circuit breaker.
// Clients are immutable; WithTransport derives per-session copies that share the breaker.
type Client struct {
	name    string
	baseURL string
	timeout time.Duration
	base    http.RoundTripper
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]

	settings gobreaker.Settings
}

// New constructs a Client. The base transport is wrapped with OpenTelemetry instrumentation.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("upstream: %s base url is required", cfg.Name)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("upstream: %s base url: %w", cfg.Name, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrSessionExpired) || errors.Is(err, context.Canceled)
		},
	}
	if cfg.OnBreakerChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnBreakerChange(name, from.String(), to.String())
		}
	}

	base := otelhttp.NewTransport(transport)
	return &Client{
		name:    cfg.Name,
		baseURL: baseURL,
		timeout: timeout,
		base:    base,
		http:    &http.Client{Timeout: timeout, Transport: base},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),

		settings: settings,
	}, nil
}

// Name returns the service name used in errors and metrics.
func (c *Client) Name() string { return c.name }

// BaseURL returns the service root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// WithTransport returns a copy whose transport is wrap(base). The breaker is shared.
func (c *Client) WithTransport(wrap func(http.RoundTripper) http.RoundTripper) *Client {
	clone := *c
	clone.http = &http.Client{Timeout: c.timeout, Transport: wrap(c.base)}
	return &clone
}

// WithBreaker returns a copy with its own circuit breaker named name. Calls made
// while another call holds the shared breaker, such as a token refresh issued from
// inside a request, go through it so they never compete for a half-open slot.
func (c *Client) WithBreaker(name string) *Client {
	clone := *c
	clone.settings.Name = name
	clone.breaker = gobreaker.NewCircuitBreaker[*http.Response](clone.settings)
	return &clone
}

// Request describes one call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// Get issues a GET and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Do executes req. Non-2xx responses become *Error; out may be nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	_, err := c.exchange(ctx, req, out)
	return err
}

// DoRaw executes req like Do and also returns the response headers, for callers that relay cookies.
func (c *Client) DoRaw(ctx context.Context, req Request, out any) (http.Header, error) {
	return c.exchange(ctx, req, out)
}

func (c *Client) exchange(ctx context.Context, req Request, out any) (http.Header, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, c.name)
	case err != nil && !errors.Is(err, errServerStatus):
		requestctx.Logger(ctx).Warn("upstream request failed",
			zap.String("upstream", c.name), zap.String("method", httpReq.Method), zap.String("path", req.Path), zap.Error(err))
		return nil, fmt.Errorf("upstream: %s %s %s: %w", c.name, httpReq.Method, req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.Header, fmt.Errorf("upstream: %s read body: %w", c.name, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		uerr := &Error{Service: c.name, Status: resp.StatusCode, Message: decodeErrorMessage(body)}
		if resp.StatusCode >= http.StatusInternalServerError {
			requestctx.Logger(ctx).Warn("upstream server error",
				zap.String("upstream", c.name), zap.String("path", req.Path), zap.Int("status", resp.StatusCode))
		}
		return resp.Header, uerr
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 || resp.StatusCode == http.StatusNoContent {
		return resp.Header, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.Header, fmt.Errorf("%w: %s %s: %v", ErrInvalidResponse, c.name, req.Path, err)
	}
	return resp.Header, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("upstream: encode %s body: %w", req.Path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	return httpReq, nil
}
