package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ringline/ringline/internal/v1/logging"
	"github.com/ringline/ringline/internal/v1/types"
)

// Banner is the text served on any unrecognized path.
const Banner = "ringline signaling server"

// Handler manages health check endpoints
type Handler struct {
	bus types.BusService
}

// NewHandler creates a new health check handler
func NewHandler(busService types.BusService) *Handler {
	return &Handler{bus: busService}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Probe handles the platform health probe.
// GET /health
// Returns 200 with a plain OK body; no dependency checks.
func (h *Handler) Probe(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy, 503 otherwise
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkBus(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// NotFound serves the banner on any unrecognized path. The status stays 200;
// this surface exists for platform probes, not for API discovery.
func (h *Handler) NotFound(c *gin.Context) {
	c.String(http.StatusOK, Banner)
}

// checkBus verifies Redis connectivity using the PING command
func (h *Handler) checkBus(ctx context.Context) string {
	// Single-instance mode without Redis counts as healthy
	if h.bus == nil {
		return "healthy"
	}

	if err := h.bus.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}
