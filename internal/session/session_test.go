package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/KoushikPanda1729/client-ui/internal/auth"
	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
	"github.com/KoushikPanda1729/client-ui/internal/realtime"
)

type stubKeys struct{}

func (stubKeys) OrderKey(userID string) string    { return "order-" + userID }
func (stubKeys) PaymentKey(orderID string) string { return "payment-" + orderID }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFactory(t *testing.T, handler http.Handler, clock *testClock) *Factory {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gw, err := upstream.New(upstream.Config{Name: "gateway", BaseURL: srv.URL})
	require.NoError(t, err)
	f, err := NewFactory(FactoryDeps{Gateway: gw, Keys: stubKeys{}, Now: clock.Now})
	require.NoError(t, err)
	return f
}

func newManager(t *testing.T, f *Factory, store *Store) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{HashKey: []byte(strings.Repeat("k", 32))}, store, f)
	require.NoError(t, err)
	return m
}

func TestManagerResolvesSessionFromCookie(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	f := newFactory(t, http.NotFoundHandler(), clock)
	store := NewStore(time.Hour, clock.Now, nil)
	m := newManager(t, f, store)

	rec := httptest.NewRecorder()
	first, err := m.Resolve(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, defaultCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	again, err := m.Resolve(rec, req)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Empty(t, rec.Result().Cookies())

	tampered := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	tampered.AddCookie(&http.Cookie{Name: defaultCookieName, Value: cookies[0].Value + "x"})
	other, err := m.Resolve(httptest.NewRecorder(), tampered)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), other.ID())
	assert.Equal(t, 2, store.Len())
}

func TestMiddlewareAttachesSession(t *testing.T) {
	clock := &testClock{now: time.Now()}
	f := newFactory(t, http.NotFoundHandler(), clock)
	m := newManager(t, f, NewStore(0, clock.Now, nil))

	var seen *Session
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = sess
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, seen)

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestStoreSweepsIdleSessions(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	f := newFactory(t, http.NotFoundHandler(), clock)
	store := NewStore(30*time.Minute, clock.Now, nil)

	idle, err := f.New("idle")
	require.NoError(t, err)
	active, err := f.New("active")
	require.NoError(t, err)
	store.Put(idle)
	store.Put(active)

	clock.Advance(20 * time.Minute)
	_, ok := store.Get("active")
	require.True(t, ok)
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, store.Sweep(context.Background()))
	_, ok = store.Get("idle")
	assert.False(t, ok)
	_, ok = store.Get("active")
	assert.True(t, ok)
	assert.Equal(t, auth.StateStopped, idle.Scheduler().State())
}

func TestSelectingTenantDropsCoupon(t *testing.T) {
	clock := &testClock{now: time.Now()}
	f := newFactory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/billing/coupons/verify", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"valid":true,"code":"SAVE10","title":"Ten off","discount":10}`))
	}), clock)
	sess, err := f.New("s1")
	require.NoError(t, err)

	sess.Cart().SelectTenant(domain.Tenant{ID: "t1"})
	q, err := sess.Checkout().ApplyCoupon(context.Background(), "SAVE10")
	require.NoError(t, err)
	require.NotNil(t, q.Coupon)

	sess.Cart().SelectTenant(domain.Tenant{ID: "t2"})
	assert.Nil(t, sess.Checkout().Quote().Coupon)
}

func TestFailedRefreshSignsOut(t *testing.T) {
	clock := &testClock{now: time.Now()}
	var refreshes int
	var mu sync.Mutex
	f := newFactory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == auth.RefreshPath {
			mu.Lock()
			refreshes++
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"jwt expired"}`))
	}), clock)
	sess, err := f.New("s1")
	require.NoError(t, err)
	sess.Tokens().Set("access", "refresh")
	sess.SetUser(domain.User{ID: 7})

	_, err = sess.Billing().Wallet(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrSessionExpired)

	_, ok := sess.User()
	assert.False(t, ok)
	assert.False(t, sess.Tokens().Authenticated())
	mu.Lock()
	assert.Equal(t, 1, refreshes)
	mu.Unlock()
}

// rotatingGateway answers 500 while down, rotates the access token to fresh on
// refresh, and serves the wallet only to fresh.
type rotatingGateway struct {
	fresh     string
	down      atomic.Bool
	refreshes atomic.Int32
}

func (g *rotatingGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.down.Load() {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == auth.RefreshPath {
		g.refreshes.Add(1)
		http.SetCookie(w, &http.Cookie{Name: auth.AccessCookie, Value: g.fresh})
		http.SetCookie(w, &http.Cookie{Name: auth.RefreshCookie, Value: "refresh-2"})
		_, _ = w.Write([]byte(`{}`))
		return
	}
	if c, err := r.Cookie(auth.AccessCookie); err != nil || c.Value != g.fresh {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"jwt expired"}`))
		return
	}
	_, _ = w.Write([]byte(`{"balance":12,"currency":"INR"}`))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestUnauthorizedRecoversWhileGatewayBreakerHalfOpen(t *testing.T) {
	gw := &rotatingGateway{fresh: "access-2"}
	srv := httptest.NewServer(gw)
	defer srv.Close()
	api, err := upstream.New(upstream.Config{
		Name:            "gateway",
		BaseURL:         srv.URL,
		BreakerFailures: 2,
		BreakerCooldown: 80 * time.Millisecond,
	})
	require.NoError(t, err)
	f, err := NewFactory(FactoryDeps{Gateway: api, Keys: stubKeys{}})
	require.NoError(t, err)
	sess, err := f.New("s1")
	require.NoError(t, err)
	defer sess.Close()
	sess.Tokens().Set("access-1", "refresh-1")
	sess.SetUser(domain.User{ID: 7})

	gw.down.Store(true)
	for i := 0; i < 2; i++ {
		_, err := sess.Billing().Wallet(context.Background())
		require.Error(t, err)
	}
	_, err = sess.Billing().Wallet(context.Background())
	require.ErrorIs(t, err, upstream.ErrUnavailable)

	gw.down.Store(false)
	time.Sleep(120 * time.Millisecond)

	wallet, err := sess.Billing().Wallet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.0, wallet.Balance)
	assert.Equal(t, int32(1), gw.refreshes.Load())
	assert.True(t, sess.Tokens().Authenticated())
	_, ok := sess.User()
	assert.True(t, ok)
}

func TestUnavailableRefreshKeepsSession(t *testing.T) {
	gw := &rotatingGateway{fresh: "access-2"}
	srv := httptest.NewServer(gw)
	defer srv.Close()
	api, err := upstream.New(upstream.Config{Name: "gateway", BaseURL: srv.URL, BreakerFailures: 1, BreakerCooldown: time.Minute})
	require.NoError(t, err)
	f, err := NewFactory(FactoryDeps{Gateway: api, Keys: stubKeys{}})
	require.NoError(t, err)
	sess, err := f.New("s1")
	require.NoError(t, err)
	defer sess.Close()
	sess.Tokens().Set("access-1", "refresh-1")
	sess.SetUser(domain.User{ID: 7})

	// Trip the refresh breaker only.
	gw.down.Store(true)
	require.Error(t, sess.Refresher().Refresh(context.Background(), auth.TriggerManual))
	gw.down.Store(false)

	_, err = sess.Billing().Wallet(context.Background())
	require.ErrorIs(t, err, upstream.ErrUnavailable)
	assert.NotErrorIs(t, err, upstream.ErrSessionExpired)
	assert.True(t, sess.Tokens().Authenticated())
	_, ok := sess.User()
	assert.True(t, ok)
}

func TestUnauthorizedRefreshReschedulesFromNewToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	gw := &rotatingGateway{fresh: signedToken(t, exp)}
	srv := httptest.NewServer(gw)
	defer srv.Close()
	api, err := upstream.New(upstream.Config{Name: "gateway", BaseURL: srv.URL})
	require.NoError(t, err)
	f, err := NewFactory(FactoryDeps{Gateway: api, Keys: stubKeys{}, RefreshBuffer: 5 * time.Second})
	require.NoError(t, err)
	sess, err := f.New("s1")
	require.NoError(t, err)
	defer sess.Close()

	sess.Tokens().Set("access-1", "refresh-1")
	require.Equal(t, auth.StateIdle, sess.Scheduler().State())

	_, err = sess.Billing().Wallet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StateScheduled, sess.Scheduler().State())
	assert.WithinDuration(t, exp.Add(-5*time.Second), sess.Scheduler().NextRefresh(), 2*time.Second)
}

func TestSignOutClosesChannels(t *testing.T) {
	clock := &testClock{now: time.Now()}
	f := newFactory(t, http.NotFoundHandler(), clock)
	sess, err := f.New("s1")
	require.NoError(t, err)

	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		var frame realtime.Frame
		for websocket.JSON.Receive(ws, &frame) == nil {
		}
	}))
	defer srv.Close()
	conn, err := realtime.Dial(context.Background(), realtime.DialConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	require.NoError(t, err)
	go func() { _ = conn.Run(context.Background()) }()

	require.NoError(t, sess.Track(conn))
	assert.Equal(t, 1, sess.Channels())
	sess.SignOut()

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel left open after sign out")
	}
	assert.Eventually(t, func() bool { return sess.Channels() == 0 }, time.Second, 10*time.Millisecond)

	sess.Close()
	late, err := realtime.Dial(context.Background(), realtime.DialConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	require.NoError(t, err)
	assert.ErrorIs(t, sess.Track(late), ErrClosed)
}
