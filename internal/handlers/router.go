// Package handlers exposes the storefront BFF over HTTP: JSON routes under /api
// and WebSocket bridges under /ws, all bound to the caller's server-side session.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/KoushikPanda1729/client-ui/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	sessions    func(http.Handler) http.Handler
	origins     []string
	timeout     time.Duration

	api     []RouteRegistrar
	sockets RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// WithMiddlewares appends global middleware, applied to every route.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithHealthHandlers overrides the health endpoint.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithSessions sets the middleware that binds requests to sessions.
func WithSessions(mw func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.sessions = mw }
}

// WithAllowedOrigins configures CORS for the browser origins.
func WithAllowedOrigins(origins []string) Option {
	return func(cfg *routerConfig) { cfg.origins = origins }
}

// WithRequestTimeout bounds /api requests. WebSocket routes are not bounded.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithAPIRoutes registers routes under /api.
func WithAPIRoutes(registrars ...RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.api = append(cfg.api, registrars...) }
}

// WithSocketRoutes registers routes under /ws.
func WithSocketRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.sockets = registrar }
}

// NewRouter constructs the chi router with shared middleware and route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
		},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)

	r.Group(func(r chi.Router) {
		if len(cfg.origins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.origins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
				ExposedHeaders:   []string{"X-Request-Id"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}
		if cfg.sessions != nil {
			r.Use(cfg.sessions)
		}

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.timeout))
			for _, register := range cfg.api {
				if register != nil {
					register(r)
				}
			}
		})
		if cfg.sockets != nil {
			r.Route("/ws", func(r chi.Router) { cfg.sockets(r) })
		}
	})

	return r
}
