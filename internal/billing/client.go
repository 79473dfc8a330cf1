// Package billing is the client for customers, taxes, delivery, orders, payments,
// wallet and coupons on the billing service.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/platform/idempotency"
	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
)

var (
	// ErrInvalidInput is returned when an identifier or payload field is blank.
	ErrInvalidInput = errors.New("billing: invalid input")
	// ErrCouponRejected is returned when verification reports the code as not valid.
	ErrCouponRejected = errors.New("billing: coupon rejected")
)

// Client calls the billing endpoints through the gateway.
type Client struct {
	api *upstream.Client
}

// NewClient wraps a gateway client. Callers that act for a signed-in user pass a
// client whose transport carries that user's session.
func NewClient(api *upstream.Client) (*Client, error) {
	if api == nil {
		return nil, errors.New("billing client: upstream client is required")
	}
	return &Client{api: api}, nil
}

func requireID(kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: %s id is required", ErrInvalidInput, kind)
	}
	return id, nil
}

func pageQuery(page, limit, fallbackLimit int) url.Values {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = fallbackLimit
	}
	return url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(min(limit, 100))}}
}

type customerEnvelope struct {
	Message  string          `json:"message"`
	Customer domain.Customer `json:"customer"`
}

// Customer fetches a customer by id. The id may be the auth user id.
func (c *Client) Customer(ctx context.Context, id string) (domain.Customer, error) {
	id, err := requireID("customer", id)
	if err != nil {
		return domain.Customer{}, err
	}
	var payload customerEnvelope
	if err := c.api.Get(ctx, "/billing/customers/"+url.PathEscape(id), nil, &payload); err != nil {
		return domain.Customer{}, fmt.Errorf("billing: get customer: %w", err)
	}
	return payload.Customer, nil
}

// CreateCustomer creates the customer record for the caller identified by the session token.
func (c *Client) CreateCustomer(ctx context.Context) (domain.Customer, error) {
	var payload customerEnvelope
	if err := c.api.Post(ctx, "/billing/customers", struct{}{}, &payload); err != nil {
		return domain.Customer{}, fmt.Errorf("billing: create customer: %w", err)
	}
	return payload.Customer, nil
}

// AddressInput is the body for address create and update.
type AddressInput struct {
	Text      string `json:"text"`
	IsDefault bool   `json:"isDefault"`
}

func (in AddressInput) normalized() (AddressInput, error) {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return in, fmt.Errorf("%w: address text is required", ErrInvalidInput)
	}
	return in, nil
}

func addressPath(customerID, addressID string) string {
	p := "/billing/customers/" + url.PathEscape(customerID) + "/addresses"
	if addressID != "" {
		p += "/" + url.PathEscape(addressID)
	}
	return p
}

// AddAddress appends an address and returns the updated customer.
func (c *Client) AddAddress(ctx context.Context, customerID string, in AddressInput) (domain.Customer, error) {
	customerID, err := requireID("customer", customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	if in, err = in.normalized(); err != nil {
		return domain.Customer{}, err
	}
	var payload customerEnvelope
	if err := c.api.Post(ctx, addressPath(customerID, ""), in, &payload); err != nil {
		return domain.Customer{}, fmt.Errorf("billing: add address: %w", err)
	}
	return payload.Customer, nil
}

// UpdateAddress replaces an address and returns the updated customer.
func (c *Client) UpdateAddress(ctx context.Context, customerID, addressID string, in AddressInput) (domain.Customer, error) {
	customerID, err := requireID("customer", customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	if addressID, err = requireID("address", addressID); err != nil {
		return domain.Customer{}, err
	}
	if in, err = in.normalized(); err != nil {
		return domain.Customer{}, err
	}
	var payload customerEnvelope
	req := upstream.Request{Method: http.MethodPut, Path: addressPath(customerID, addressID), Body: in}
	if err := c.api.Do(ctx, req, &payload); err != nil {
		return domain.Customer{}, fmt.Errorf("billing: update address: %w", err)
	}
	return payload.Customer, nil
}

// DeleteAddress removes an address and returns the updated customer.
func (c *Client) DeleteAddress(ctx context.Context, customerID, addressID string) (domain.Customer, error) {
	customerID, err := requireID("customer", customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	if addressID, err = requireID("address", addressID); err != nil {
		return domain.Customer{}, err
	}
	var payload customerEnvelope
	req := upstream.Request{Method: http.MethodDelete, Path: addressPath(customerID, addressID)}
	if err := c.api.Do(ctx, req, &payload); err != nil {
		return domain.Customer{}, fmt.Errorf("billing: delete address: %w", err)
	}
	return payload.Customer, nil
}

// Taxes returns the tax configuration for a tenant.
func (c *Client) Taxes(ctx context.Context, tenantID string) ([]domain.Tax, error) {
	tenantID, err := requireID("tenant", tenantID)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Taxes []domain.Tax `json:"taxes"`
	}
	if err := c.api.Get(ctx, "/billing/taxes", url.Values{"tenantId": {tenantID}}, &payload); err != nil {
		return nil, fmt.Errorf("billing: get taxes: %w", err)
	}
	return payload.Taxes, nil
}

// Delivery quotes the delivery charge for a subtotal at a tenant.
func (c *Client) Delivery(ctx context.Context, tenantID string, subtotal float64) (domain.DeliveryQuote, error) {
	tenantID, err := requireID("tenant", tenantID)
	if err != nil {
		return domain.DeliveryQuote{}, err
	}
	q := url.Values{
		"tenantId":      {tenantID},
		"orderSubTotal": {strconv.FormatFloat(subtotal, 'f', -1, 64)},
	}
	var quote domain.DeliveryQuote
	if err := c.api.Get(ctx, "/billing/delivery/calculate", q, &quote); err != nil {
		return domain.DeliveryQuote{}, fmt.Errorf("billing: calculate delivery: %w", err)
	}
	return quote, nil
}

// CreateOrder submits an order under the given idempotency key.
func (c *Client) CreateOrder(ctx context.Context, payload domain.OrderPayload, key string) (domain.Order, error) {
	if strings.TrimSpace(key) == "" {
		return domain.Order{}, fmt.Errorf("%w: idempotency key is required", ErrInvalidInput)
	}
	var out struct {
		Order domain.Order `json:"order"`
	}
	req := upstream.Request{
		Method: http.MethodPost,
		Path:   "/billing/orders",
		Body:   payload,
		Header: http.Header{idempotency.Header: {key}},
	}
	if err := c.api.Do(ctx, req, &out); err != nil {
		return domain.Order{}, fmt.Errorf("billing: create order: %w", err)
	}
	return out.Order, nil
}

// MyOrders lists the caller's orders, newest first.
func (c *Client) MyOrders(ctx context.Context, page, limit int) (domain.OrderList, error) {
	var out domain.OrderList
	if err := c.api.Get(ctx, "/billing/orders/my-orders", pageQuery(page, limit, 10), &out); err != nil {
		return domain.OrderList{}, fmt.Errorf("billing: list orders: %w", err)
	}
	if out.Orders == nil {
		out.Orders = []domain.Order{}
	}
	return out, nil
}

// Order fetches one order.
func (c *Client) Order(ctx context.Context, id string) (domain.Order, error) {
	id, err := requireID("order", id)
	if err != nil {
		return domain.Order{}, err
	}
	var out struct {
		Order domain.Order `json:"order"`
	}
	if err := c.api.Get(ctx, "/billing/orders/"+url.PathEscape(id), nil, &out); err != nil {
		return domain.Order{}, fmt.Errorf("billing: get order: %w", err)
	}
	return out.Order, nil
}

// CancelOrder moves an order to the cancelled status.
func (c *Client) CancelOrder(ctx context.Context, id string) (domain.Order, error) {
	id, err := requireID("order", id)
	if err != nil {
		return domain.Order{}, err
	}
	var out struct {
		Order domain.Order `json:"order"`
	}
	req := upstream.Request{
		Method: http.MethodPatch,
		Path:   "/billing/orders/" + url.PathEscape(id) + "/status",
		Body:   map[string]string{"status": domain.OrderStatusCancelled},
	}
	if err := c.api.Do(ctx, req, &out); err != nil {
		return domain.Order{}, fmt.Errorf("billing: cancel order: %w", err)
	}
	return out.Order, nil
}

// PaymentRequest is the body of a payment initiation.
type PaymentRequest struct {
	OrderID  string  `json:"orderId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	TenantID string  `json:"tenantId"`
}

// InitiatePayment creates a hosted payment session under the given idempotency key.
func (c *Client) InitiatePayment(ctx context.Context, in PaymentRequest, key string) (domain.PaymentSession, error) {
	if _, err := requireID("order", in.OrderID); err != nil {
		return domain.PaymentSession{}, err
	}
	if strings.TrimSpace(key) == "" {
		return domain.PaymentSession{}, fmt.Errorf("%w: idempotency key is required", ErrInvalidInput)
	}
	var out domain.PaymentSession
	req := upstream.Request{
		Method: http.MethodPost,
		Path:   "/billing/payments/initiate",
		Body:   in,
		Header: http.Header{idempotency.Header: {key}},
	}
	if err := c.api.Do(ctx, req, &out); err != nil {
		return domain.PaymentSession{}, fmt.Errorf("billing: initiate payment: %w", err)
	}
	if out.OrderID == "" {
		out.OrderID = in.OrderID
	}
	return out, nil
}

// Payment reads a payment session after the provider redirects back.
func (c *Client) Payment(ctx context.Context, sessionID string) (domain.PaymentSession, error) {
	sessionID, err := requireID("payment session", sessionID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	var out domain.PaymentSession
	if err := c.api.Get(ctx, "/billing/payments/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return domain.PaymentSession{}, fmt.Errorf("billing: get payment: %w", err)
	}
	if out.SessionID == "" {
		out.SessionID = sessionID
	}
	return out, nil
}

// Refunds lists refunds recorded against an order.
func (c *Client) Refunds(ctx context.Context, orderID string) ([]domain.Refund, error) {
	orderID, err := requireID("order", orderID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Refunds []domain.Refund `json:"refunds"`
	}
	if err := c.api.Get(ctx, "/billing/payments/refunds/"+url.PathEscape(orderID), nil, &out); err != nil {
		return nil, fmt.Errorf("billing: list refunds: %w", err)
	}
	if out.Refunds == nil {
		out.Refunds = []domain.Refund{}
	}
	return out.Refunds, nil
}
