package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health is the liveness endpoint used by the gateway and
// monitoring. It reports the process as healthy with a timestamp; it
// deliberately does not touch the stores, so a degraded dependency
// shows up as request errors rather than a flapping health check.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
