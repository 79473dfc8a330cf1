package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/KoushikPanda1729/client-ui/internal/platform/httpx"
)

const (
	defaultCookieName = "storefront_session"
	defaultCookiePath = "/"
)

// ErrInvalidConfig indicates the manager was initialised with missing or invalid options.
var ErrInvalidConfig = errors.New("session: invalid config")

// ManagerConfig controls the session cookie.
type ManagerConfig struct {
	CookieName string
	HashKey    []byte
	BlockKey   []byte
	Secure     bool
	// MaxAge bounds the cookie lifetime. Zero keeps it a browser-session cookie.
	MaxAge time.Duration
}

type cookiePayload struct {
	ID       string    `json:"id"`
	IssuedAt time.Time `json:"iat"`
}

// Manager maps requests to server-side sessions through a signed cookie and
// creates sessions on first contact.
type Manager struct {
	cfg     ManagerConfig
	codec   *securecookie.SecureCookie
	store   *Store
	factory *Factory
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewManager validates cfg.
func NewManager(cfg ManagerConfig, store *Store, factory *Factory) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	if store == nil || factory == nil {
		return nil, fmt.Errorf("%w: store and factory are required", ErrInvalidConfig)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	var block []byte
	if len(cfg.BlockKey) > 0 {
		block = cfg.BlockKey
	}
	codec := securecookie.New(cfg.HashKey, block)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.MaxAge.Seconds()))
	return &Manager{
		cfg:     cfg,
		codec:   codec,
		store:   store,
		factory: factory,
		now:     factory.deps.Now,
		logger:  factory.deps.Logger,
	}, nil
}

// Resolve returns the request's live session, creating one and setting the cookie
// when the cookie is missing, tampered with, or names a swept session.
func (m *Manager) Resolve(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if id, ok := m.decode(r); ok {
		if sess, ok := m.store.Get(id); ok {
			return sess, nil
		}
	}
	sess, err := m.factory.New(uuid.NewString())
	if err != nil {
		return nil, err
	}
	encoded, err := m.codec.Encode(m.cfg.CookieName, cookiePayload{ID: sess.ID(), IssuedAt: m.now().UTC()})
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("encode session: %w", err)
	}
	m.store.Put(sess)
	http.SetCookie(w, m.cookie(encoded))
	m.logger(r.Context(), "session.created", map[string]any{"session": sess.ID()})
	return sess, nil
}

// Destroy drops the session and clears its cookie.
func (m *Manager) Destroy(w http.ResponseWriter, sess *Session) {
	if sess != nil {
		m.store.Remove(sess.ID())
	}
	c := m.cookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func (m *Manager) decode(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return "", false
	}
	var payload cookiePayload
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &payload); err != nil {
		return "", false
	}
	if _, err := uuid.Parse(payload.ID); err != nil {
		return "", false
	}
	return payload.ID, true
}

func (m *Manager) cookie(value string) *http.Cookie {
	c := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     defaultCookiePath,
		Secure:   m.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if m.cfg.MaxAge > 0 {
		c.MaxAge = int(m.cfg.MaxAge.Seconds())
	}
	return c
}

type contextKey struct{}

// Middleware attaches the request's session to the context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.Resolve(w, r)
		if err != nil {
			m.logger(r.Context(), "session.resolve_failed", map[string]any{"error": err.Error()})
			httpx.WriteError(r.Context(), w, httpx.NewError("session_unavailable", "Something went wrong. Please try again.", http.StatusInternalServerError))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session attached by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok && sess != nil
}
