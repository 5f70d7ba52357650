package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/amtlich/amtlich/pkg/models"
	"github.com/amtlich/amtlich/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// Backends are probed with a short timeout; component entries carry
// status and a sanitised message, never connection details. Top-level
// status is the worst component status, where disabled backends only
// degrade, and all backends down is unhealthy.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	up := 0
	total := 0
	status := healthStatusHealthy

	for backend, health := range s.facade.Health(reqCtx) {
		total++
		entry := HealthCheck{Status: healthStatusHealthy}
		switch health.Status {
		case models.BackendOK:
			up++
		case models.BackendDisabled:
			entry.Status = healthStatusDegraded
			entry.Message = "disabled"
			status = healthStatusDegraded
		default:
			entry.Status = healthStatusUnhealthy
			entry.Message = health.Details
			status = healthStatusDegraded
		}
		checks[string(backend)] = entry
	}
	if total > 0 && up == 0 {
		status = healthStatusUnhealthy
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
