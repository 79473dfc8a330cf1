package auth

import (
	"net/http"
	"sync"
)

// Cookie names used by the auth service.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// Tokens holds one session's auth cookies. Version increments on every rotation so
// callers can tell whether a refresh happened after they sent a request.
type Tokens struct {
	mu      sync.RWMutex
	access  string
	refresh string
	version uint64
}

// TokenSnapshot is a consistent view of the stored tokens.
type TokenSnapshot struct {
	Access  string
	Refresh string
	Version uint64
}

// Snapshot returns the current tokens.
func (t *Tokens) Snapshot() TokenSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TokenSnapshot{Access: t.access, Refresh: t.refresh, Version: t.version}
}

// AccessToken returns the current access token, or "".
func (t *Tokens) AccessToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.access
}

// Version returns the rotation counter.
func (t *Tokens) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Set stores a new pair. An empty refresh token keeps the previous one.
func (t *Tokens) Set(access, refresh string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.access = access
	if refresh != "" {
		t.refresh = refresh
	}
	t.version++
}

// Clear forgets both tokens.
func (t *Tokens) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.access == "" && t.refresh == "" {
		return
	}
	t.access, t.refresh = "", ""
	t.version++
}

// Authenticated reports whether an access or refresh token is present.
func (t *Tokens) Authenticated() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.access != "" || t.refresh != ""
}

// Apply records rotated tokens found in Set-Cookie values. An expired cookie
// (MaxAge < 0) clears that token. It reports whether anything changed.
func (t *Tokens) Apply(cookies []*http.Cookie) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := false
	for _, c := range cookies {
		value := c.Value
		if c.MaxAge < 0 {
			value = ""
		}
		switch c.Name {
		case AccessCookie:
			if t.access != value {
				t.access, changed = value, true
			}
		case RefreshCookie:
			if t.refresh != value {
				t.refresh, changed = value, true
			}
		}
	}
	if changed {
		t.version++
	}
	return changed
}

// Attach replaces any auth cookies on req with the snapshot's values.
func (s TokenSnapshot) Attach(req *http.Request) {
	existing := req.Cookies()
	req.Header.Del("Cookie")
	for _, c := range existing {
		if c.Name == AccessCookie || c.Name == RefreshCookie {
			continue
		}
		req.AddCookie(c)
	}
	if s.Access != "" {
		req.AddCookie(&http.Cookie{Name: AccessCookie, Value: s.Access})
	}
	if s.Refresh != "" {
		req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: s.Refresh})
	}
}
