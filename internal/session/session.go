// Package session holds the storefront's server-side sessions. A Session owns one
// shopper's tokens, cart, checkout and open realtime channels; browsers only carry
// a signed cookie naming it.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/KoushikPanda1729/client-ui/internal/auth"
	"github.com/KoushikPanda1729/client-ui/internal/billing"
	"github.com/KoushikPanda1729/client-ui/internal/cart"
	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/events"
	"github.com/KoushikPanda1729/client-ui/internal/platform/observability"
	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
	"github.com/KoushikPanda1729/client-ui/internal/realtime"
	"github.com/KoushikPanda1729/client-ui/internal/services"
)

// ErrClosed is returned when attaching to a session that has been swept.
var ErrClosed = errors.New("session: closed")

// FactoryDeps wires the per-session object graph.
type FactoryDeps struct {
	// Gateway is the shared API gateway client; sessions derive cookie-carrying copies.
	Gateway   *upstream.Client
	Keys      services.KeyGenerator
	Publisher events.Publisher
	Metrics   *observability.Metrics

	Currency                string
	CouponAttemptsPerMinute int
	RefreshBuffer           time.Duration
	// Clock drives the refresh scheduler. Nil selects wall time.
	Clock  auth.Clock
	Now    func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// Factory builds sessions.
type Factory struct {
	deps FactoryDeps
	// refreshGateway carries token refreshes on a breaker of its own; a refresh
	// runs inside the request that hit the 401 and holds the gateway breaker.
	refreshGateway *upstream.Client
}

// NewFactory validates deps.
func NewFactory(deps FactoryDeps) (*Factory, error) {
	if deps.Gateway == nil {
		return nil, errors.New("session factory: gateway client is required")
	}
	if deps.Keys == nil {
		return nil, errors.New("session factory: key generator is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = func(context.Context, string, map[string]any) {}
	}
	return &Factory{deps: deps, refreshGateway: deps.Gateway.WithBreaker(deps.Gateway.Name() + "-refresh")}, nil
}

// Session is one shopper's server-side state. It implements services.AuthSession.
type Session struct {
	id     string
	now    func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)

	tokens    *auth.Tokens
	api       *upstream.Client
	auth      *auth.Client
	billing   *billing.Client
	refresher *auth.Refresher
	scheduler *auth.Scheduler
	cart      *cart.Store
	checkout  *services.Checkout
	unsub     func()

	mu       sync.Mutex
	user     *domain.User
	lastSeen time.Time
	conns    map[*realtime.Conn]struct{}
	closed   bool
}

// New builds a session named id.
func (f *Factory) New(id string) (*Session, error) {
	d := f.deps
	s := &Session{
		id:       id,
		now:      d.Now,
		logger:   d.Logger,
		tokens:   &auth.Tokens{},
		lastSeen: d.Now(),
		conns:    make(map[*realtime.Conn]struct{}),
	}

	var err error
	withAuth := func(base http.RoundTripper) http.RoundTripper {
		transport, terr := auth.NewTransport(auth.TransportDeps{
			Base:          base,
			Tokens:        s.tokens,
			Refresh:       s.recoverUnauthorized,
			OnAuthFailure: s.authFailed,
		})
		if terr != nil {
			err = terr
			return base
		}
		return transport
	}
	s.api = d.Gateway.WithTransport(withAuth)
	refreshAPI := f.refreshGateway.WithTransport(withAuth)
	if err != nil {
		return nil, err
	}

	if s.auth, err = auth.NewClient(s.api); err != nil {
		return nil, err
	}
	refreshClient, err := auth.NewClient(refreshAPI)
	if err != nil {
		return nil, err
	}
	if s.billing, err = billing.NewClient(s.api); err != nil {
		return nil, err
	}
	s.refresher, err = auth.NewRefresher(auth.RefresherDeps{
		Client:  refreshClient,
		Tokens:  s.tokens,
		Gate:    auth.NewRefreshGate(id),
		Metrics: d.Metrics,
		Logger:  d.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.scheduler, err = auth.NewScheduler(auth.SchedulerDeps{
		Tokens:    s.tokens,
		Refresh:   s.refresher.For(auth.TriggerScheduled),
		Clock:     d.Clock,
		Buffer:    d.RefreshBuffer,
		OnFailure: s.scheduleFailed,
		Logger:    d.Logger,
	})
	if err != nil {
		return nil, err
	}

	s.cart = cart.NewStore()
	s.checkout, err = services.NewCheckout(services.CheckoutDeps{
		Billing:                 s.billing,
		Cart:                    s.cart,
		Keys:                    d.Keys,
		Publisher:               d.Publisher,
		Metrics:                 d.Metrics,
		Currency:                d.Currency,
		CouponAttemptsPerMinute: d.CouponAttemptsPerMinute,
		Logger:                  d.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.unsub = s.cart.Subscribe(func(ch cart.Change) {
		if ch.Action.Type == cart.ActionSelectTenant {
			s.checkout.TenantChanged()
		}
	})
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Tokens returns the session's auth cookie store.
func (s *Session) Tokens() *auth.Tokens { return s.tokens }

// Auth returns the auth client bound to this session's cookies.
func (s *Session) Auth() *auth.Client { return s.auth }

// Billing returns the billing client bound to this session's cookies.
func (s *Session) Billing() *billing.Client { return s.billing }

// Refresher rotates this session's tokens.
func (s *Session) Refresher() *auth.Refresher { return s.refresher }

// Scheduler returns the proactive refresh timer.
func (s *Session) Scheduler() *auth.Scheduler { return s.scheduler }

// Cart returns the shopper's cart.
func (s *Session) Cart() *cart.Store { return s.cart }

// Checkout returns the checkout orchestrator.
func (s *Session) Checkout() *services.Checkout { return s.checkout }

// Upstream returns the gateway client carrying this session's cookies.
func (s *Session) Upstream() *upstream.Client { return s.api }

// User returns the signed-in user.
func (s *Session) User() (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// SetUser binds the signed-in user.
func (s *Session) SetUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
}

// SignOut forgets the user and tokens, stops the refresh schedule, resets checkout
// and closes realtime channels. The cart survives.
func (s *Session) SignOut() {
	s.scheduler.Stop()
	s.tokens.Clear()
	s.checkout.Reset()

	s.mu.Lock()
	s.user = nil
	conns := s.takeConnsLocked()
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// Touch records activity.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
}

// LastSeen returns the last activity time.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Track ties conn to the session so it closes on sign out or expiry.
func (s *Session) Track(conn *realtime.Conn) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	conn.OnClose(func(error) {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	})
	return nil
}

// Channels returns the number of open realtime channels.
func (s *Session) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close tears the session down. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := s.takeConnsLocked()
	s.mu.Unlock()

	s.scheduler.Stop()
	s.unsub()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Session) takeConnsLocked() []*realtime.Conn {
	conns := make([]*realtime.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[*realtime.Conn]struct{})
	return conns
}

func (s *Session) authFailed(ctx context.Context, err error) {
	s.logger(ctx, "session.auth_failed", map[string]any{"session": s.id, "error": err.Error()})
	s.SignOut()
}

// recoverUnauthorized refreshes after a 401 and re-arms the scheduler from the
// rotated token, replacing a timer armed for the old one.
func (s *Session) recoverUnauthorized(ctx context.Context) error {
	if err := s.refresher.Refresh(ctx, auth.TriggerUnauthorized); err != nil {
		return err
	}
	if err := s.scheduler.Start(ctx); err != nil {
		s.logger(ctx, "session.reschedule_failed", map[string]any{"session": s.id, "error": err.Error()})
	}
	return nil
}

func (s *Session) scheduleFailed(err error) {
	if errors.Is(err, upstream.ErrUnavailable) {
		// The next 401 retries the refresh.
		s.logger(context.Background(), "session.refresh_deferred", map[string]any{"session": s.id, "error": err.Error()})
		return
	}
	s.authFailed(context.Background(), err)
}

var _ services.AuthSession = (*Session)(nil)
