package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/amtlich/amtlich/pkg/faults"
)

// mapServiceError maps classified pipeline errors to HTTP error
// responses. Only the sanitised fault message reaches the client.
func mapServiceError(err error) *echo.HTTPError {
	switch faults.KindOf(err) {
	case faults.KindValidation, faults.KindCycleDetected:
		return echo.NewHTTPError(http.StatusBadRequest, faults.Message(err))
	case faults.KindAgentNotFound:
		return echo.NewHTTPError(http.StatusNotFound, faults.Message(err))
	case faults.KindCancelled:
		return echo.NewHTTPError(499, "request cancelled")
	case faults.KindBackendUnavailable:
		return echo.NewHTTPError(http.StatusServiceUnavailable, faults.Message(err))
	case faults.KindBackendTimeout:
		return echo.NewHTTPError(http.StatusGatewayTimeout, faults.Message(err))
	}

	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
