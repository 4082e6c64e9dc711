package server

import (
	"github.com/labstack/echo/v4"

	"github.com/gridsense/meterhub/internal/correlation"
)

const requestIDHeader = "X-Request-ID"

// correlationMiddleware tags every request with a correlation ID so log lines
// emitted while handling it can be tied together. An inbound X-Request-ID is
// honored; otherwise a fresh ID is generated. The ID is echoed back in the
// response.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if id == "" {
				id = correlation.NewID()
			}

			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(requestIDHeader, id)

			return next(c)
		}
	}
}
