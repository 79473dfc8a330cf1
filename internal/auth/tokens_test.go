package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensApplyRotatesVersion(t *testing.T) {
	var tokens Tokens
	tokens.Set("a1", "r1")
	assert.Equal(t, uint64(1), tokens.Version())

	assert.False(t, tokens.Apply([]*http.Cookie{{Name: AccessCookie, Value: "a1"}}))
	assert.Equal(t, uint64(1), tokens.Version())

	assert.True(t, tokens.Apply([]*http.Cookie{{Name: AccessCookie, Value: "a2"}, {Name: "other", Value: "x"}}))
	snap := tokens.Snapshot()
	assert.Equal(t, TokenSnapshot{Access: "a2", Refresh: "r1", Version: 2}, snap)

	assert.True(t, tokens.Apply([]*http.Cookie{{Name: RefreshCookie, MaxAge: -1}}))
	assert.Equal(t, "", tokens.Snapshot().Refresh)

	tokens.Clear()
	assert.False(t, tokens.Authenticated())
}

func TestSnapshotAttachReplacesAuthCookies(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://gateway/billing/orders", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "stale"})
	req.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})

	TokenSnapshot{Access: "fresh", Refresh: "r"}.Attach(req)

	got := map[string]string{}
	for _, c := range req.Cookies() {
		got[c.Name] = c.Value
	}
	assert.Equal(t, map[string]string{"theme": "dark", AccessCookie: "fresh", RefreshCookie: "r"}, got)
}

func TestExpiryFromToken(t *testing.T) {
	exp := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	got, err := ExpiryFromToken(signedToken(t, exp))
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	_, err = ExpiryFromToken("")
	assert.ErrorIs(t, err, ErrNoToken)
	_, err = ExpiryFromToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrMalformedToken)
}
