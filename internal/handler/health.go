package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks map[string]CheckFunc
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler. Every check must pass for readiness.
func NewHealthHandler(checks map[string]CheckFunc, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthResponse represents the health status response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /healthz - simple liveness check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /readyz - returns 200 only if all dependencies are healthy
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			checks[name] = "error: " + err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !healthy {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadinessResponse{Status: status, Checks: checks})

	attrs := []any{slog.String("status", status)}
	for _, name := range names {
		attrs = append(attrs, slog.String(name, checks[name]))
	}
	h.logger.Info("readiness check", attrs...)
}
