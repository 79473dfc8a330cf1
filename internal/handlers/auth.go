package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KoushikPanda1729/client-ui/internal/auth"
	"github.com/KoushikPanda1729/client-ui/internal/platform/httpx"
	"github.com/KoushikPanda1729/client-ui/internal/services"
)

const (
	defaultLoginAttempts = 10
	loginWindow          = time.Minute
)

// AuthHandlers signs shoppers in and out of their session.
type AuthHandlers struct {
	auth    *services.AuthService
	limiter rateLimiter
}

// AuthOption customises AuthHandlers.
type AuthOption func(*AuthHandlers)

// WithLoginRateLimit bounds login and registration attempts per client per minute.
func WithLoginRateLimit(perMinute int, clock func() time.Time) AuthOption {
	return func(h *AuthHandlers) { h.limiter = newClientLimiter(perMinute, loginWindow, clock) }
}

// NewAuthHandlers constructs the auth routes.
func NewAuthHandlers(svc *services.AuthService, opts ...AuthOption) *AuthHandlers {
	h := &AuthHandlers{auth: svc, limiter: newClientLimiter(defaultLoginAttempts, loginWindow, nil)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes wires /auth.
func (h *AuthHandlers) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/register", h.register)
		r.Post("/logout", h.logout)
		r.Post("/refresh", h.refresh)
		r.Get("/self", h.self)
		r.Get("/accessToken", h.accessToken)
	})
}

func (h *AuthHandlers) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "Too many attempts. Please wait a minute.", http.StatusTooManyRequests))
		return false
	}
	return true
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok || !h.allow(w, r) {
		return
	}
	var in auth.Credentials
	if !decodeBody(w, r, &in) {
		return
	}
	user, err := h.auth.Login(r.Context(), sess, in)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"user": user})
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok || !h.allow(w, r) {
		return
	}
	var in auth.Registration
	if !decodeBody(w, r, &in) {
		return
	}
	user, err := h.auth.Register(r.Context(), sess, in)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"user": user})
}

func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	h.auth.Logout(r.Context(), sess)
	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	if _, err := h.auth.Refresh(r.Context(), sess); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandlers) self(w http.ResponseWriter, r *http.Request) {
	sess, prev, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	user, err := sess.Auth().Self(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	if user.ID == 0 {
		user.ID = prev.ID
	}
	sess.SetUser(user)
	writeJSONResponse(w, http.StatusOK, user)
}

func (h *AuthHandlers) accessToken(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	token, err := h.auth.AccessToken(sess)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"accessToken": token})
}
