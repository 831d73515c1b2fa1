package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"cors-relay-go/internal/redact"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Relay paths embed full target URLs, so the query string is never logged and
// passwords in the path are redacted.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", redact.Credentials(req.URL.Path),
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if err != nil {
				attrs = append(attrs, "err", redact.Credentials(err.Error()))
			}
			logger.Info("request", attrs...)

			return err
		}
	}
}
