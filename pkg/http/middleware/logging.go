package middleware

import (
	"time"

	applogger "FinPolicy/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs each request at debug level and server errors at error
// level.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	l = l.Component("http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []applogger.Field{
				applogger.String("method", c.Request().Method),
				applogger.String("route", c.Path()),
				applogger.Int("status", status),
				applogger.Duration("duration_ms", time.Since(start)),
				applogger.String("remote", c.RealIP()),
			}
			if status >= 500 {
				l.Error("http request failed", fields...)
			} else {
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
