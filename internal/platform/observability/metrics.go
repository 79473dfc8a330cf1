package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics groups the storefront counters. A zero value is safe and records nothing.
type Metrics struct {
	ordersPlaced   metric.Int64Counter
	tokenRefreshes metric.Int64Counter
	couponAttempts metric.Int64Counter
	breakerChanges metric.Int64Counter
}

// NewMetrics registers the storefront instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	var (
		m   Metrics
		err error
	)
	if m.ordersPlaced, err = meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders created through checkout, by payment outcome.")); err != nil {
		return nil, err
	}
	if m.tokenRefreshes, err = meter.Int64Counter("storefront.auth.token_refreshes",
		metric.WithDescription("Access token refresh attempts, by trigger and result.")); err != nil {
		return nil, err
	}
	if m.couponAttempts, err = meter.Int64Counter("storefront.checkout.coupon_attempts",
		metric.WithDescription("Coupon verification attempts, by result.")); err != nil {
		return nil, err
	}
	if m.breakerChanges, err = meter.Int64Counter("storefront.upstream.breaker_transitions",
		metric.WithDescription("Circuit breaker state changes per upstream.")); err != nil {
		return nil, err
	}
	return &m, nil
}

// OrderPlaced counts a created order.
func (m *Metrics) OrderPlaced(ctx context.Context, outcome string) {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// TokenRefresh counts a refresh attempt.
func (m *Metrics) TokenRefresh(ctx context.Context, trigger string, ok bool) {
	if m == nil || m.tokenRefreshes == nil {
		return
	}
	m.tokenRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger), attribute.Bool("ok", ok)))
}

// CouponAttempt counts a coupon verification.
func (m *Metrics) CouponAttempt(ctx context.Context, result string) {
	if m == nil || m.couponAttempts == nil {
		return
	}
	m.couponAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// BreakerTransition counts an upstream circuit breaker state change.
func (m *Metrics) BreakerTransition(name, from, to string) {
	if m == nil || m.breakerChanges == nil {
		return
	}
	m.breakerChanges.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("upstream", name),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
