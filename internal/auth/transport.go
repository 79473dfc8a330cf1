package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
)

// TransportDeps wires a session Transport.
type TransportDeps struct {
	Base   http.RoundTripper
	Tokens *Tokens
	// Refresh rotates Tokens. It is normally Refresher.Refresh bound to the 401 trigger.
	Refresh func(ctx context.Context) error
	// OnAuthFailure runs once per failed recovery, after which the request fails
	// with ErrSessionExpired.
	OnAuthFailure func(ctx context.Context, err error)
}

// Transport attaches a session's auth cookies to outgoing requests, records rotated
// cookies from responses, and recovers from a 401 by refreshing and replaying the
// request once. Refresh requests themselves are never recovered.
type Transport struct {
	base          http.RoundTripper
	tokens        *Tokens
	refresh       func(ctx context.Context) error
	onAuthFailure func(ctx context.Context, err error)
}

// NewTransport validates deps.
func NewTransport(deps TransportDeps) (*Transport, error) {
	if deps.Tokens == nil {
		return nil, errors.New("auth transport: tokens are required")
	}
	if deps.Refresh == nil {
		return nil, errors.New("auth transport: refresh func is required")
	}
	base := deps.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, tokens: deps.Tokens, refresh: deps.Refresh, onAuthFailure: deps.OnAuthFailure}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	sent := t.tokens.Snapshot()
	resp, err := t.send(req, sent)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || isRefreshRequest(req) {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()

	ctx := req.Context()
	// Another request may already have rotated the tokens while this one was in flight.
	if t.tokens.Version() == sent.Version {
		if err := t.refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// An unreachable auth service says nothing about the session.
			if errors.Is(err, upstream.ErrUnavailable) {
				return nil, fmt.Errorf("auth transport: refresh: %w", err)
			}
			if t.onAuthFailure != nil {
				t.onAuthFailure(ctx, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("auth transport: rewind body: %w", err)
		}
		retry.Body = body
	}
	return t.send(retry, t.tokens.Snapshot())
}

func (t *Transport) send(req *http.Request, tokens TokenSnapshot) (*http.Response, error) {
	out := req.Clone(req.Context())
	tokens.Attach(out)
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	t.tokens.Apply(resp.Cookies())
	return resp, nil
}

func isRefreshRequest(req *http.Request) bool {
	return strings.HasSuffix(strings.TrimRight(req.URL.Path, "/"), RefreshPath)
}
