package handlers

import (
	"net/http"
	"time"

	"github.com/KoushikPanda1729/client-ui/internal/platform/httpx"
)

// HealthHandlers serves liveness checks.
type HealthHandlers struct {
	started time.Time
	now     func() time.Time
	checks  map[string]func() error
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthClock overrides the clock.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// WithHealthCheck adds a named dependency check.
func WithHealthCheck(name string, check func() error) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// NewHealthHandlers constructs the health endpoint.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now, checks: map[string]func() error{}}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.now()
	return h
}

// Healthz reports process status and dependency checks.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	now := h.now()
	payload := map[string]any{
		"status":    state,
		"uptime":    now.Sub(h.started).Round(time.Second).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if len(checks) > 0 {
		payload["checks"] = checks
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, status, payload)
}
