package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// agentsHandler handles GET /api/v1/agents with the registry projection.
// Agents whose backing store is unreachable report degraded, not absent.
func (s *Server) agentsHandler(c *echo.Context) error {
	dbAvailable := false
	if s.engine != nil {
		dbAvailable = s.engine.BackendsAvailable()
	}
	report := s.registry.HealthReport(dbAvailable, true)

	return c.JSON(http.StatusOK, &AgentListResponse{
		Agents:     report,
		TotalCount: s.registry.Len(),
		ByDomain:   s.registry.CountByDomain(),
	})
}
