package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/KoushikPanda1729/client-ui/internal/billing"
	"github.com/KoushikPanda1729/client-ui/internal/cart"
	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/events"
	"github.com/KoushikPanda1729/client-ui/internal/platform/observability"
	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
	"github.com/KoushikPanda1729/client-ui/internal/pricing"
)

// Phase is the checkout lifecycle state.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseLoadingCustomer Phase = "loading-customer"
	PhaseReady           Phase = "ready"
	PhaseSubmitting      Phase = "submitting"
	PhaseSuccess         Phase = "success"
	PhasePaymentRedirect Phase = "payment-redirect"
	PhaseFailed          Phase = "failed"
)

const defaultCouponAttemptsPerMinute = 5

var (
	// ErrCustomerNotLoaded means checkout has not been prepared for the user.
	ErrCustomerNotLoaded = errors.New("checkout: customer not loaded")
	// ErrAddressRequired means no delivery address is selected.
	ErrAddressRequired = errors.New("checkout: address required")
	// ErrCartEmpty means there is nothing to order.
	ErrCartEmpty = errors.New("checkout: cart is empty")
	// ErrTenantRequired means no restaurant is selected.
	ErrTenantRequired = errors.New("checkout: restaurant required")
	// ErrCheckoutInProgress means an order submission is already running.
	ErrCheckoutInProgress = errors.New("checkout: submission in progress")
	// ErrCouponRateLimited means too many coupon attempts were made recently.
	ErrCouponRateLimited = errors.New("checkout: too many coupon attempts")
	// ErrAddressNotFound means the address id is not on the customer record.
	ErrAddressNotFound = errors.New("checkout: address not found")
	// ErrInvalidPaymentType means the payment type is not Online or COD.
	ErrInvalidPaymentType = errors.New("checkout: invalid payment type")
)

// CheckoutDeps wires a Checkout.
type CheckoutDeps struct {
	Billing   BillingGateway
	Cart      *cart.Store
	Keys      KeyGenerator
	Publisher EventPublisher
	Metrics   *observability.Metrics
	Currency  string
	// CouponAttemptsPerMinute bounds verification calls per session. Zero selects the default.
	CouponAttemptsPerMinute int
	Clock                   func() time.Time
	Logger                  func(ctx context.Context, event string, fields map[string]any)
}

// Checkout drives one session's checkout: customer, address, coupon, wallet,
// quote and order submission. It is safe for concurrent use.
type Checkout struct {
	billing   BillingGateway
	cart      *cart.Store
	keys      KeyGenerator
	publisher EventPublisher
	metrics   *observability.Metrics
	currency  string
	limiter   *rate.Limiter
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)

	mu              sync.Mutex
	phase           Phase
	userID          string
	customer        *domain.Customer
	addressID       string
	taxes           []domain.Tax
	delivery        domain.DeliveryQuote
	wallet          domain.Wallet
	walletRequested float64
	coupon          *domain.VerifiedCoupon
	lastOrder       *PlaceOrderResult
}

// NewCheckout validates deps.
func NewCheckout(deps CheckoutDeps) (*Checkout, error) {
	if deps.Billing == nil {
		return nil, errors.New("checkout: billing gateway is required")
	}
	if deps.Cart == nil {
		return nil, errors.New("checkout: cart store is required")
	}
	if deps.Keys == nil {
		return nil, errors.New("checkout: key generator is required")
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NewLogPublisher(nil)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	perMinute := deps.CouponAttemptsPerMinute
	if perMinute <= 0 {
		perMinute = defaultCouponAttemptsPerMinute
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}
	return &Checkout{
		billing:   deps.Billing,
		cart:      deps.Cart,
		keys:      deps.Keys,
		publisher: publisher,
		metrics:   deps.Metrics,
		currency:  currency,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
		phase:     PhaseIdle,
	}, nil
}

// Quote is the checkout view: selections plus the computed totals.
type Quote struct {
	Phase           Phase                  `json:"phase"`
	Customer        *domain.Customer       `json:"customer,omitempty"`
	AddressID       string                 `json:"addressId,omitempty"`
	Tenant          *domain.Tenant         `json:"tenant,omitempty"`
	Items           []domain.CartItem      `json:"items"`
	Coupon          *domain.VerifiedCoupon `json:"coupon,omitempty"`
	Taxes           []domain.Tax           `json:"taxes"`
	Delivery        domain.DeliveryQuote   `json:"delivery"`
	Wallet          domain.Wallet          `json:"wallet"`
	WalletRequested float64                `json:"walletRequested"`
	Breakdown       pricing.Breakdown      `json:"breakdown"`
}

// Prepare loads (or creates) the customer, selects an address and fetches taxes,
// delivery and the wallet balance for the current cart.
func (c *Checkout) Prepare(ctx context.Context, user domain.User) (Quote, error) {
	userID := user.IDString()
	state := c.cart.Snapshot()

	c.mu.Lock()
	if c.phase == PhaseSubmitting {
		c.mu.Unlock()
		return Quote{}, ErrCheckoutInProgress
	}
	needCustomer := c.customer == nil || c.userID != userID
	if needCustomer {
		c.phase = PhaseLoadingCustomer
		c.customer, c.addressID, c.userID = nil, "", userID
	}
	c.mu.Unlock()

	if needCustomer {
		customer, err := c.ensureCustomer(ctx, userID)
		if err != nil {
			c.setPhase(PhaseFailed)
			return Quote{}, err
		}
		c.mu.Lock()
		c.customer = &customer
		if addr, ok := customer.DefaultAddress(); ok {
			c.addressID = addr.ID
		}
		c.mu.Unlock()
	}

	if state.Tenant != nil {
		taxes, delivery, wallet, err := c.fetchPricingInputs(ctx, state.Tenant.ID, state.Subtotal)
		if err != nil {
			c.setPhase(PhaseFailed)
			return Quote{}, err
		}
		c.mu.Lock()
		c.taxes, c.delivery, c.wallet = taxes, delivery, wallet
		c.mu.Unlock()
	}

	c.setPhase(PhaseReady)
	return c.Quote(), nil
}

// ensureCustomer fetches the customer by user id, creating it on a 404.
func (c *Checkout) ensureCustomer(ctx context.Context, userID string) (domain.Customer, error) {
	customer, err := c.billing.Customer(ctx, userID)
	if err == nil {
		return customer, nil
	}
	if !upstream.IsNotFound(err) {
		c.logger(ctx, "checkout.customer_fetch_failed", map[string]any{"userID": userID, "error": err.Error()})
		return domain.Customer{}, err
	}
	created, err := c.billing.CreateCustomer(ctx)
	if err != nil {
		c.logger(ctx, "checkout.customer_create_failed", map[string]any{"userID": userID, "error": err.Error()})
		return domain.Customer{}, err
	}
	c.logger(ctx, "checkout.customer_created", map[string]any{"userID": userID, "customerID": created.ID})
	return c.billing.Customer(ctx, created.ID)
}

// fetchPricingInputs loads taxes, delivery and wallet concurrently. A wallet
// failure is logged and treated as a zero balance.
func (c *Checkout) fetchPricingInputs(ctx context.Context, tenantID string, subtotal float64) ([]domain.Tax, domain.DeliveryQuote, domain.Wallet, error) {
	var (
		taxes    []domain.Tax
		delivery domain.DeliveryQuote
		wallet   domain.Wallet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		taxes, err = c.billing.Taxes(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		delivery, err = c.billing.Delivery(gctx, tenantID, subtotal)
		return err
	})
	g.Go(func() error {
		w, err := c.billing.Wallet(gctx)
		if err != nil {
			if gctx.Err() == nil {
				c.logger(ctx, "checkout.wallet_fetch_failed", map[string]any{"error": err.Error()})
			}
			return nil
		}
		wallet = w
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, domain.DeliveryQuote{}, domain.Wallet{}, err
	}
	return taxes, delivery, wallet, nil
}

// Quote recomputes the totals from the current cart and the last fetched inputs.
func (c *Checkout) Quote() Quote {
	state := c.cart.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quoteLocked(state)
}

func (c *Checkout) quoteLocked(state cart.State) Quote {
	q := Quote{
		Phase:           c.phase,
		AddressID:       c.addressID,
		Tenant:          state.Tenant,
		Items:           state.Items,
		Taxes:           append([]domain.Tax(nil), c.taxes...),
		Delivery:        c.delivery,
		Wallet:          c.wallet,
		WalletRequested: c.walletRequested,
	}
	if q.Items == nil {
		q.Items = []domain.CartItem{}
	}
	if q.Taxes == nil {
		q.Taxes = []domain.Tax{}
	}
	if c.customer != nil {
		customer := *c.customer
		q.Customer = &customer
	}
	if c.coupon != nil {
		coupon := *c.coupon
		q.Coupon = &coupon
	}
	q.Breakdown = c.breakdown(state.Subtotal, c.taxes, c.delivery, c.wallet.Balance)
	return q
}

func (c *Checkout) breakdown(subtotal float64, taxes []domain.Tax, delivery domain.DeliveryQuote, balance float64) pricing.Breakdown {
	in := pricing.Input{
		Subtotal:        subtotal,
		Taxes:           taxes,
		DeliveryCharge:  delivery.Charge,
		WalletBalance:   balance,
		WalletRequested: c.walletRequested,
	}
	if delivery.IsFree {
		in.DeliveryCharge = 0
	}
	if c.coupon != nil {
		in.DiscountPercent = c.coupon.Discount
	}
	return pricing.Calculate(in)
}

func (c *Checkout) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// Phase returns the lifecycle state.
func (c *Checkout) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// ApplyCoupon verifies code for the selected restaurant. On rejection any
// previously applied coupon is removed and the returned quote reflects that.
func (c *Checkout) ApplyCoupon(ctx context.Context, code string) (Quote, error) {
	state := c.cart.Snapshot()
	if state.Tenant == nil {
		return c.Quote(), ErrTenantRequired
	}
	if !c.limiter.Allow() {
		c.metrics.CouponAttempt(ctx, "rate_limited")
		return c.Quote(), ErrCouponRateLimited
	}

	verified, err := c.billing.VerifyCoupon(ctx, code, state.Tenant.ID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.coupon = nil
		c.metrics.CouponAttempt(ctx, "rejected")
		c.logger(ctx, "checkout.coupon_rejected", map[string]any{"code": strings.TrimSpace(code), "error": err.Error()})
		return c.quoteLocked(state), err
	}
	c.coupon = &verified
	c.metrics.CouponAttempt(ctx, "accepted")
	return c.quoteLocked(state), nil
}

// RemoveCoupon drops the applied coupon.
func (c *Checkout) RemoveCoupon() Quote {
	state := c.cart.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coupon = nil
	return c.quoteLocked(state)
}

// SetWallet records how much wallet credit the shopper wants to use. The quote
// clamps it to min(balance, totalBeforeWallet).
func (c *Checkout) SetWallet(amount float64) Quote {
	state := c.cart.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.walletRequested = max(0, amount)
	return c.quoteLocked(state)
}

// SelectAddress chooses the delivery address.
func (c *Checkout) SelectAddress(id string) (Quote, error) {
	state := c.cart.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.customer == nil {
		return c.quoteLocked(state), ErrCustomerNotLoaded
	}
	if _, ok := c.customer.Address(id); !ok {
		return c.quoteLocked(state), ErrAddressNotFound
	}
	c.addressID = id
	return c.quoteLocked(state), nil
}

// AddAddress saves a new address and selects it.
func (c *Checkout) AddAddress(ctx context.Context, in billing.AddressInput) (Quote, error) {
	customerID, err := c.customerID()
	if err != nil {
		return c.Quote(), err
	}
	before := c.addressIDs()
	customer, err := c.billing.AddAddress(ctx, customerID, in)
	if err != nil {
		return c.Quote(), err
	}
	selected := ""
	for _, a := range customer.Addresses {
		if _, seen := before[a.ID]; !seen {
			selected = a.ID
		}
	}
	return c.replaceCustomer(customer, selected), nil
}

// UpdateAddress edits an address.
func (c *Checkout) UpdateAddress(ctx context.Context, addressID string, in billing.AddressInput) (Quote, error) {
	customerID, err := c.customerID()
	if err != nil {
		return c.Quote(), err
	}
	customer, err := c.billing.UpdateAddress(ctx, customerID, addressID, in)
	if err != nil {
		return c.Quote(), err
	}
	return c.replaceCustomer(customer, ""), nil
}

// DeleteAddress removes an address. If it was selected, the default (or first)
// remaining address is selected instead.
func (c *Checkout) DeleteAddress(ctx context.Context, addressID string) (Quote, error) {
	customerID, err := c.customerID()
	if err != nil {
		return c.Quote(), err
	}
	customer, err := c.billing.DeleteAddress(ctx, customerID, addressID)
	if err != nil {
		return c.Quote(), err
	}
	return c.replaceCustomer(customer, ""), nil
}

func (c *Checkout) customerID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.customer == nil {
		return "", ErrCustomerNotLoaded
	}
	return c.customer.ID, nil
}

func (c *Checkout) addressIDs() map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make(map[string]struct{})
	if c.customer != nil {
		for _, a := range c.customer.Addresses {
			ids[a.ID] = struct{}{}
		}
	}
	return ids
}

// replaceCustomer stores an updated customer record and keeps the selection valid.
func (c *Checkout) replaceCustomer(customer domain.Customer, prefer string) Quote {
	state := c.cart.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customer = &customer
	switch {
	case prefer != "":
		c.addressID = prefer
	case c.addressID != "":
		if _, ok := customer.Address(c.addressID); !ok {
			c.addressID = ""
		}
	}
	if c.addressID == "" {
		if addr, ok := customer.DefaultAddress(); ok {
			c.addressID = addr.ID
		}
	}
	return c.quoteLocked(state)
}

// TenantChanged drops state scoped to the previous restaurant.
func (c *Checkout) TenantChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coupon = nil
	c.taxes = nil
	c.delivery = domain.DeliveryQuote{}
}

// Reset forgets everything, e.g. on sign out.
func (c *Checkout) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseIdle
	c.userID = ""
	c.customer = nil
	c.addressID = ""
	c.taxes = nil
	c.delivery = domain.DeliveryQuote{}
	c.wallet = domain.Wallet{}
	c.walletRequested = 0
	c.coupon = nil
	c.lastOrder = nil
}

// PlaceOrderCommand carries the shopper's submission choices.
type PlaceOrderCommand struct {
	PaymentType domain.PaymentType
}

// PlaceOrderResult describes the created order and what the browser should do next.
type PlaceOrderResult struct {
	Order        domain.Order      `json:"order"`
	Breakdown    pricing.Breakdown `json:"breakdown"`
	Outcome      string            `json:"outcome"`
	PaymentURL   string            `json:"paymentUrl,omitempty"`
	PaymentID    string            `json:"paymentSessionId,omitempty"`
	PaidByWallet bool              `json:"paidByWallet"`
}

// PlaceOrder validates the checkout, recomputes the totals against freshly fetched
// taxes and delivery, creates the order and branches on how it is paid.
func (c *Checkout) PlaceOrder(ctx context.Context, user domain.User, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	paymentType := cmd.PaymentType
	switch paymentType {
	case "":
		paymentType = domain.PaymentCOD
	case domain.PaymentCOD, domain.PaymentOnline:
	default:
		return PlaceOrderResult{}, ErrInvalidPaymentType
	}

	state := c.cart.Snapshot()
	c.mu.Lock()
	if c.phase == PhaseSubmitting {
		c.mu.Unlock()
		return PlaceOrderResult{}, ErrCheckoutInProgress
	}
	if err := c.checkPreconditionsLocked(state); err != nil {
		c.mu.Unlock()
		return PlaceOrderResult{}, err
	}
	c.phase = PhaseSubmitting
	customer := *c.customer
	address, _ := customer.Address(c.addressID)
	c.mu.Unlock()

	result, err := c.submit(ctx, user, state, customer, address, paymentType)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.phase = PhaseFailed
		return PlaceOrderResult{}, err
	}
	if result.Outcome == events.OutcomeOnline {
		c.phase = PhasePaymentRedirect
	} else {
		c.phase = PhaseSuccess
	}
	c.coupon = nil
	c.walletRequested = 0
	c.lastOrder = &result
	return result, nil
}

func (c *Checkout) checkPreconditionsLocked(state cart.State) error {
	if c.customer == nil {
		return ErrCustomerNotLoaded
	}
	if c.addressID == "" {
		return ErrAddressRequired
	}
	if _, ok := c.customer.Address(c.addressID); !ok {
		return ErrAddressRequired
	}
	if len(state.Items) == 0 {
		return ErrCartEmpty
	}
	if state.Tenant == nil || state.Tenant.ID == "" {
		return ErrTenantRequired
	}
	return nil
}

func (c *Checkout) submit(ctx context.Context, user domain.User, state cart.State, customer domain.Customer, address domain.Address, paymentType domain.PaymentType) (PlaceOrderResult, error) {
	tenantID := state.Tenant.ID
	taxes, delivery, wallet, err := c.fetchPricingInputs(ctx, tenantID, state.Subtotal)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	c.mu.Lock()
	c.taxes, c.delivery = taxes, delivery
	if wallet != (domain.Wallet{}) {
		c.wallet = wallet
	}
	balance := c.wallet.Balance
	breakdown := c.breakdown(state.Subtotal, taxes, delivery, balance)
	var couponCode string
	if c.coupon != nil {
		couponCode = c.coupon.Code
	}
	c.mu.Unlock()

	payload := buildOrderPayload(customer.ID, tenantID, address.Text, state.Items, couponCode, breakdown, paymentType)
	key := c.keys.OrderKey(user.IDString())
	order, err := c.billing.CreateOrder(ctx, payload, key)
	if err != nil {
		c.metrics.OrderPlaced(ctx, events.OutcomeRejected)
		c.logger(ctx, "checkout.order_create_failed", map[string]any{"userID": user.IDString(), "error": err.Error()})
		return PlaceOrderResult{}, err
	}

	result := PlaceOrderResult{Order: order, Breakdown: breakdown, PaidByWallet: breakdown.PaidByWallet()}
	switch {
	case breakdown.PaidByWallet():
		result.Outcome = events.OutcomeWallet
		c.cart.Clear()
	case paymentType == domain.PaymentOnline:
		session, err := c.billing.InitiatePayment(ctx, billing.PaymentRequest{
			OrderID:  order.ID,
			Amount:   breakdown.FinalTotal,
			Currency: c.currency,
			TenantID: tenantID,
		}, c.keys.PaymentKey(order.ID))
		if err != nil {
			c.logger(ctx, "checkout.payment_initiate_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
			return PlaceOrderResult{}, fmt.Errorf("order %s created but payment could not start: %w", order.ID, err)
		}
		result.Outcome = events.OutcomeOnline
		result.PaymentURL = session.PaymentURL
		result.PaymentID = session.SessionID
	default:
		result.Outcome = events.OutcomeCOD
		c.cart.Clear()
	}

	c.metrics.OrderPlaced(ctx, result.Outcome)
	c.publish(ctx, events.OrderEvent{
		Type:           events.TypeOrderPlaced,
		OrderID:        order.ID,
		UserID:         user.IDString(),
		TenantID:       tenantID,
		PaymentMode:    string(paymentType),
		Outcome:        result.Outcome,
		FinalTotal:     breakdown.FinalTotal,
		IdempotencyKey: key,
	})
	c.logger(ctx, "checkout.order_placed", map[string]any{"orderID": order.ID, "outcome": result.Outcome})
	return result, nil
}

func buildOrderPayload(customerID, tenantID, address string, items []domain.CartItem, couponCode string, b pricing.Breakdown, paymentType domain.PaymentType) domain.OrderPayload {
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		toppings := item.Toppings
		if toppings == nil {
			toppings = []domain.Topping{}
		}
		lines = append(lines, domain.OrderLine{
			ProductID:          item.ProductID,
			Name:               item.Name,
			Image:              item.Image,
			Qty:                item.Quantity,
			UnitPrice:          item.Price,
			PriceConfiguration: domain.PriceConfiguration{Size: item.Size, Crust: item.Crust},
			Toppings:           toppings,
			TotalPrice:         pricing.Round2(item.LineTotal()),
		})
	}
	return domain.OrderPayload{
		CustomerID:        customerID,
		TenantID:          tenantID,
		Address:           address,
		Items:             lines,
		SubTotal:          b.Subtotal,
		CouponCode:        couponCode,
		Discount:          b.DiscountAmount,
		TaxTotal:          b.Taxes,
		DeliveryCharge:    b.DeliveryCharge,
		WalletCreditsUsed: b.WalletApplied,
		Total:             b.TotalBeforeWallet,
		FinalTotal:        b.FinalTotal,
		PaymentMode:       paymentType,
	}
}

// PaymentResult reads a payment session after the provider redirect. The cart is
// cleared once payment is confirmed.
func (c *Checkout) PaymentResult(ctx context.Context, user domain.User, sessionID string) (domain.PaymentSession, error) {
	session, err := c.billing.Payment(ctx, sessionID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if !session.Paid() {
		return session, nil
	}
	c.cart.Clear()
	c.mu.Lock()
	c.phase = PhaseSuccess
	c.mu.Unlock()
	c.publish(ctx, events.OrderEvent{
		Type:    events.TypeOrderPaid,
		OrderID: session.OrderID,
		UserID:  user.IDString(),
		Outcome: events.OutcomeOnline,
	})
	return session, nil
}

// LastOrder returns the most recent successful submission, if any.
func (c *Checkout) LastOrder() (PlaceOrderResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastOrder == nil {
		return PlaceOrderResult{}, false
	}
	return *c.lastOrder, true
}

func (c *Checkout) publish(ctx context.Context, event events.OrderEvent) {
	event.OccurredAt = c.now()
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger(ctx, "checkout.event_publish_failed", map[string]any{"type": event.Type, "orderID": event.OrderID, "error": err.Error()})
	}
}
