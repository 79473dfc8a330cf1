// Package services holds the storefront's per-session orchestration: checkout and
// sign in. Backend access goes through the narrow gateway interfaces below so the
// flows can be exercised without HTTP.
package services

import (
	"context"

	"github.com/KoushikPanda1729/client-ui/internal/auth"
	"github.com/KoushikPanda1729/client-ui/internal/billing"
	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/events"
)

// BillingGateway is the subset of the billing client checkout needs.
type BillingGateway interface {
	Customer(ctx context.Context, id string) (domain.Customer, error)
	CreateCustomer(ctx context.Context) (domain.Customer, error)
	AddAddress(ctx context.Context, customerID string, in billing.AddressInput) (domain.Customer, error)
	UpdateAddress(ctx context.Context, customerID, addressID string, in billing.AddressInput) (domain.Customer, error)
	DeleteAddress(ctx context.Context, customerID, addressID string) (domain.Customer, error)
	Taxes(ctx context.Context, tenantID string) ([]domain.Tax, error)
	Delivery(ctx context.Context, tenantID string, subtotal float64) (domain.DeliveryQuote, error)
	Wallet(ctx context.Context) (domain.Wallet, error)
	VerifyCoupon(ctx context.Context, code, tenantID string) (domain.VerifiedCoupon, error)
	CreateOrder(ctx context.Context, payload domain.OrderPayload, key string) (domain.Order, error)
	InitiatePayment(ctx context.Context, in billing.PaymentRequest, key string) (domain.PaymentSession, error)
	Payment(ctx context.Context, sessionID string) (domain.PaymentSession, error)
}

// KeyGenerator issues idempotency keys.
type KeyGenerator interface {
	OrderKey(userID string) string
	PaymentKey(orderID string) string
}

// EventPublisher records order lifecycle events.
type EventPublisher = events.Publisher

// AuthSession is the per-session state the sign-in flow drives.
type AuthSession interface {
	Tokens() *auth.Tokens
	// Auth returns an auth client whose transport carries this session's cookies.
	Auth() *auth.Client
	Refresher() *auth.Refresher
	Scheduler() *auth.Scheduler
	SetUser(user domain.User)
	// SignOut forgets the user and tokens and tears down per-user state.
	SignOut()
}

var (
	_ BillingGateway = (*billing.Client)(nil)
)
