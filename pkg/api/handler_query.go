package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// queryHandler handles POST /api/v1/query.
// Default mode runs the query synchronously and returns the
// UnifiedResponse. mode=async returns the tree id immediately; the
// caller follows progress on the stream endpoints.
func (s *Server) queryHandler(c *echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Mode != "" && req.Mode != "sync" && req.Mode != "async" {
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be sync or async")
	}

	query, err := s.svc.NewQuery(req.Query, req.SessionID, req.modelOptions())
	if err != nil {
		return mapServiceError(err)
	}

	if req.Mode == "async" {
		// Detach from the request context: the query outlives this call.
		treeID, done := s.svc.Submit(context.WithoutCancel(c.Request().Context()), query)
		go func() { <-done }()
		return c.JSON(http.StatusAccepted, &SubmittedResponse{
			TreeID:  treeID,
			Status:  "accepted",
			Message: "Query submitted for processing",
		})
	}

	response, err := s.svc.Execute(c.Request().Context(), query)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, response)
}
