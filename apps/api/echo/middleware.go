package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hansini-nalla/pes-sub000/services/metrics"
)

// metricsMiddleware records every request under its route pattern, not its path.
func metricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				// let the error handler write the response so the status code is known
				ctx.Error(err)
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(ctx.Request().Method, route, ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
