package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultHealthCheckTimeout = 5 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name     string
	check    HealthCheck
	critical bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checks  []namedCheck
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}
	return &HealthHandler{timeout: timeout}
}

// AddCheck registers a dependency probe. A failing critical check turns the
// response into 503; a failing optional one only marks the service degraded.
func (h *HealthHandler) AddCheck(name string, check HealthCheck, critical bool) {
	h.checks = append(h.checks, namedCheck{name: name, check: check, critical: critical})
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	for _, c := range h.checks {
		if err := c.check(ctx); err != nil {
			slog.Error("Health check failed", "check", c.name, "error", err)
			checks[c.name] = "unreachable"
			status = "degraded"
			if c.critical {
				statusCode = http.StatusServiceUnavailable
			}
			continue
		}
		checks[c.name] = "ok"
	}

	JSON(w, statusCode, map[string]any{
		"status":  status,
		"service": "deskroute",
		"checks":  checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
