package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
)

// gateway fakes the auth refresh endpoint and one protected resource that
// accepts only the current access token.
type gateway struct {
	mu           sync.Mutex
	current      string
	refreshes    atomic.Int32
	unauthorized atomic.Int32
	failRefresh  bool
	holdRefresh  chan struct{}
	bodies       []string
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case RefreshPath:
		g.refreshes.Add(1)
		if g.holdRefresh != nil {
			select {
			case <-g.holdRefresh:
				// Let the second caller reach the gate while this refresh is in flight.
				time.Sleep(150 * time.Millisecond)
			case <-time.After(2 * time.Second):
			}
		}
		if g.failRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"refresh token revoked"}`))
			return
		}
		g.mu.Lock()
		g.current = "access-2"
		g.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: "access-2", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "refresh-2", HttpOnly: true})
		_, _ = w.Write([]byte(`{}`))
	default:
		cookie, _ := r.Cookie(AccessCookie)
		g.mu.Lock()
		ok := cookie != nil && cookie.Value == g.current
		g.mu.Unlock()
		if !ok {
			if g.unauthorized.Add(1) == 2 && g.holdRefresh != nil {
				close(g.holdRefresh)
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.bodies = append(g.bodies, string(body))
		g.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

type harness struct {
	api      *upstream.Client
	tokens   *Tokens
	failures atomic.Int32
}

func newHarness(t *testing.T, gw *gateway) *harness {
	t.Helper()
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	base, err := upstream.New(upstream.Config{Name: "gateway", BaseURL: srv.URL})
	require.NoError(t, err)

	h := &harness{tokens: &Tokens{}}
	h.tokens.Set("access-1", "refresh-1")

	var refresher *Refresher
	transport, err := NewTransport(TransportDeps{
		Tokens:        h.tokens,
		Refresh:       func(ctx context.Context) error { return refresher.Refresh(ctx, TriggerUnauthorized) },
		OnAuthFailure: func(context.Context, error) { h.failures.Add(1) },
	})
	require.NoError(t, err)
	h.api = base.WithTransport(func(next http.RoundTripper) http.RoundTripper {
		transport.base = next
		return transport
	})
	client, err := NewClient(h.api)
	require.NoError(t, err)
	refresher, err = NewRefresher(RefresherDeps{Client: client, Tokens: h.tokens})
	require.NoError(t, err)
	return h
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	gw := &gateway{current: "access-2", holdRefresh: make(chan struct{})}
	h := newHarness(t, gw)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.api.Post(context.Background(), "/billing/orders", map[string]int{"n": i}, nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), gw.refreshes.Load())
	assert.ElementsMatch(t, []string{`{"n":0}`, `{"n":1}`}, gw.bodies)
	snap := h.tokens.Snapshot()
	assert.Equal(t, "access-2", snap.Access)
	assert.Equal(t, "refresh-2", snap.Refresh)
	assert.Zero(t, h.failures.Load())
}

func TestFailedRefreshRejectsAllWaiters(t *testing.T) {
	gw := &gateway{current: "never", failRefresh: true, holdRefresh: make(chan struct{})}
	h := newHarness(t, gw)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.api.Get(context.Background(), "/billing/wallets/balance", nil, nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired)
	}
	assert.Equal(t, int32(1), gw.refreshes.Load())
	assert.Equal(t, int32(2), h.failures.Load())
}

func TestRefreshRequestIsNotRecovered(t *testing.T) {
	gw := &gateway{current: "never", failRefresh: true}
	h := newHarness(t, gw)
	client, err := NewClient(h.api)
	require.NoError(t, err)

	_, err = client.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, upstream.IsUnauthorized(err))
	assert.Equal(t, int32(1), gw.refreshes.Load())
}

func TestReplayWithoutRefreshWhenTokensAlreadyRotated(t *testing.T) {
	var tokens Tokens
	tokens.Set("access-1", "refresh-1")
	var calls int
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		cookie, _ := r.Cookie(AccessCookie)
		if calls == 1 {
			tokens.Set("access-2", "")
			return &http.Response{StatusCode: http.StatusUnauthorized, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}}, nil
		}
		assert.Equal(t, "access-2", cookie.Value)
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}")), Header: http.Header{}}, nil
	})
	transport, err := NewTransport(TransportDeps{
		Base:   rt,
		Tokens: &tokens,
		Refresh: func(context.Context) error {
			t.Fatal("refresh should not run")
			return nil
		},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://gateway/auth/self", nil)
	require.NoError(t, err)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestUnavailableRefreshIsNotAnAuthFailure(t *testing.T) {
	var tokens Tokens
	tokens.Set("access-1", "refresh-1")
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusUnauthorized, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}}, nil
	})
	var failures int
	transport, err := NewTransport(TransportDeps{
		Base:   rt,
		Tokens: &tokens,
		Refresh: func(context.Context) error {
			return fmt.Errorf("auth: refresh: %w: gateway", upstream.ErrUnavailable)
		},
		OnAuthFailure: func(context.Context, error) { failures++ },
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://gateway/billing/wallets/balance", nil)
	require.NoError(t, err)
	_, err = transport.RoundTrip(req)
	require.ErrorIs(t, err, upstream.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.Zero(t, failures)
	assert.True(t, tokens.Authenticated())
}
