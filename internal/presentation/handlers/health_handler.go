package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthChecker defines the interface for health checking components
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependency is a named component reported by the health endpoints.
// Optional dependencies degrade the service instead of failing it.
type Dependency struct {
	Name     string
	Checker  HealthChecker
	Optional bool
}

// HealthHandler reports the state of the tracker's backing services
type HealthHandler struct {
	deps   []Dependency
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthHandler creates a new health handler. Dependencies with a nil
// checker are skipped so callers can pass optional components unconditionally.
func NewHealthHandler(logger *zap.Logger, deps ...Dependency) *HealthHandler {
	active := make([]Dependency, 0, len(deps))
	for _, d := range deps {
		if d.Checker != nil {
			active = append(active, d)
		}
	}
	return &HealthHandler{
		deps:   active,
		logger: logger,
		now:    time.Now,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string, len(h.deps)),
	}

	for _, d := range h.deps {
		if err := d.Checker.HealthCheck(ctx); err != nil {
			h.logger.Warn("Health check failed",
				zap.String("service", d.Name),
				zap.Error(err),
			)
			response.Services[d.Name] = "unhealthy"
			if !d.Optional {
				response.Status = "unhealthy"
			} else if response.Status == "healthy" {
				response.Status = "degraded"
			}
			continue
		}
		response.Services[d.Name] = "healthy"
	}

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, response)
}

// Ready handles GET /ready. Only required dependencies gate readiness.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, d := range h.deps {
		if d.Optional {
			continue
		}
		if err := d.Checker.HealthCheck(ctx); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Live handles GET /live
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
