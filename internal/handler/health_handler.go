package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"sitestats/pkg/logger"
)

// HealthChecker is anything that can report its own health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checks  map[string]HealthChecker
	driver  string
	version string
	logger  *logger.Logger
}

// NewHealthHandler creates a new health handler over the named dependencies
func NewHealthHandler(checks map[string]HealthChecker, driver, version string, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		driver:  driver,
		version: version,
		logger:  log.Named("health"),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	Version       string            `json:"version"`
	Service       string            `json:"service"`
	StorageDriver string            `json:"storage_driver"`
	Checks        map[string]string `json:"checks"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		Service:       "sitestats",
		StorageDriver: h.driver,
		Checks:        make(map[string]string, len(h.checks)),
	}

	status := http.StatusOK
	for name, check := range h.checks {
		if err := check.Health(ctx); err != nil {
			h.logger.WithError(err).WithField("check", name).Warn("Health check failed")
			response.Checks[name] = "unhealthy"
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Checks[name] = "healthy"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode health check response")
	}
}
