package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailops/triaged/pkg/models"
	"github.com/mailops/triaged/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

const healthCheckTimeout = 5 * time.Second

// handleHealth probes the inference backend, Redis and the worker pool.
// The backend is the hard dependency: without it no triage can run, so an
// unreachable backend makes the whole service unhealthy while Redis or
// pool trouble only degrades it. GET /health.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	services := make(map[string]string, 3)

	ollamaOK := s.gateway.HealthCheck(ctx)
	if ollamaOK {
		services["ollama"] = "ok"
	} else {
		services["ollama"] = "unreachable"
	}

	redisOK := true
	if err := s.repo.Ping(ctx); err != nil {
		redisOK = false
		services["redis"] = "unreachable: " + err.Error()
	} else {
		services["redis"] = "ok"
	}

	poolOK := true
	if s.pool != nil {
		if s.pool.Health().IsHealthy {
			services["worker_pool"] = "ok"
		} else {
			poolOK = false
			services["worker_pool"] = "degraded"
		}
	}

	status := healthStatusHealthy
	code := http.StatusOK
	switch {
	case !ollamaOK:
		status = healthStatusUnhealthy
		code = http.StatusServiceUnavailable
	case !redisOK || !poolOK:
		status = healthStatusDegraded
	}

	c.JSON(code, &HealthResponse{
		Status:    status,
		Version:   version.Version,
		Services:  services,
		Timestamp: models.NowISO(),
	})
}
