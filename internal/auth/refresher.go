package auth

import (
	"context"
	"errors"

	"github.com/KoushikPanda1729/client-ui/internal/platform/observability"
)

// Refresh triggers, recorded on metrics and logs.
const (
	TriggerScheduled    = "scheduled"
	TriggerUnauthorized = "unauthorized"
	TriggerManual       = "manual"
)

// RefresherDeps wires a Refresher.
type RefresherDeps struct {
	// Client must send through the session's Transport so the refresh cookie is attached.
	Client  *Client
	Tokens  *Tokens
	Gate    *RefreshGate
	Metrics *observability.Metrics
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

// Refresher rotates one session's tokens through its refresh gate.
type Refresher struct {
	client  *Client
	tokens  *Tokens
	gate    *RefreshGate
	metrics *observability.Metrics
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewRefresher validates deps.
func NewRefresher(deps RefresherDeps) (*Refresher, error) {
	if deps.Client == nil {
		return nil, errors.New("refresher: auth client is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("refresher: tokens are required")
	}
	gate := deps.Gate
	if gate == nil {
		gate = NewRefreshGate("")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Refresher{client: deps.Client, tokens: deps.Tokens, gate: gate, metrics: deps.Metrics, logger: logger}, nil
}

// Refresh rotates the tokens, or waits for a rotation already in flight.
func (r *Refresher) Refresh(ctx context.Context, trigger string) error {
	shared, err := r.gate.Do(ctx, func(ctx context.Context) error {
		cookies, err := r.client.Refresh(ctx)
		if err == nil {
			r.tokens.Apply(cookies)
			if r.tokens.AccessToken() == "" {
				err = ErrNoToken
			}
		}
		r.metrics.TokenRefresh(ctx, trigger, err == nil)
		if err != nil {
			r.logger(ctx, "token_refresh_failed", map[string]any{"trigger": trigger, "error": err.Error()})
			return err
		}
		r.logger(ctx, "token_refreshed", map[string]any{"trigger": trigger})
		return nil
	})
	if shared && err == nil {
		r.logger(ctx, "token_refresh_joined", map[string]any{"trigger": trigger})
	}
	return err
}

// For returns Refresh bound to a trigger.
func (r *Refresher) For(trigger string) func(context.Context) error {
	return func(ctx context.Context) error { return r.Refresh(ctx, trigger) }
}
