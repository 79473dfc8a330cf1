package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server, failures uint32) *Client {
	t.Helper()
	c, err := New(Config{Name: "billing", BaseURL: srv.URL + "/", BreakerFailures: failures})
	require.NoError(t, err)
	return c
}

func TestDoDecodesJSONAndSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/billing/orders", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("page"))
		assert.Equal(t, "42-key", r.Header.Get("x-idempotency-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"total":10}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"o-1"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	var out struct {
		ID string `json:"id"`
	}
	err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/billing/orders",
		Query:  url.Values{"page": {"7"}},
		Body:   map[string]int{"total": 10},
		Header: http.Header{"X-Idempotency-Key": {"42-key"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "o-1", out.ID)
}

func TestDoSurfacesServerMessage(t *testing.T) {
	cases := map[string]string{
		`{"message":"Coupon expired"}`:              "Coupon expired",
		`{"errors":[{"msg":"Invalid coupon code"}]}`: "Invalid coupon code",
		`not json`: "",
	}
	for body, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(body))
		}))
		c := newTestClient(t, srv, 0)
		err := c.Get(context.Background(), "/billing/coupons/verify", nil, nil)
		srv.Close()

		var uerr *Error
		require.ErrorAs(t, err, &uerr, body)
		assert.Equal(t, http.StatusBadRequest, uerr.Status)
		assert.Equal(t, want, Message(err), body)
	}
}

func TestBreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	for i := 0; i < 2; i++ {
		err := c.Get(context.Background(), "/billing/taxes", nil, nil)
		assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	}
	err := c.Get(context.Background(), "/billing/taxes", nil, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 2, hits.Load())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 1)
	for i := 0; i < 3; i++ {
		err := c.Get(context.Background(), "/billing/customers/u1", nil, nil)
		assert.True(t, IsNotFound(err))
	}
}

func TestWithTransportSharesBreakerAndWrapsBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cookie":"` + r.Header.Get("Cookie") + `"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	wrapped := c.WithTransport(func(base http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(r *http.Request) (*http.Response, error) {
			r = r.Clone(r.Context())
			r.Header.Set("Cookie", "accessToken=a")
			return base.RoundTrip(r)
		})
	})

	var out struct {
		Cookie string `json:"cookie"`
	}
	require.NoError(t, wrapped.Get(context.Background(), "/auth/self", nil, &out))
	assert.Equal(t, "accessToken=a", out.Cookie)
	assert.Same(t, c.breaker, wrapped.breaker)
}

func TestWithBreakerIsolatesTripState(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 1)
	isolated := c.WithBreaker("billing-auth")
	assert.NotSame(t, c.breaker, isolated.breaker)
	assert.Equal(t, "billing-auth", isolated.breaker.Name())

	assert.Equal(t, http.StatusBadGateway, StatusCode(c.Get(context.Background(), "/billing/taxes", nil, nil)))
	fail.Store(false)
	assert.ErrorIs(t, c.Get(context.Background(), "/billing/taxes", nil, nil), ErrUnavailable)
	require.NoError(t, isolated.Post(context.Background(), "/auth/refresh", nil, nil))
}

func TestInvalidSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":`))
	}))
	defer srv.Close()

	var out map[string]any
	err := newTestClient(t, srv, 0).Get(context.Background(), "/x", nil, &out)
	assert.True(t, errors.Is(err, ErrInvalidResponse))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
