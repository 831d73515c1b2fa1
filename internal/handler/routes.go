// Package handler contains the Echo handlers and route wiring for the relay.
package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cors-relay-go/internal/config"
	"cors-relay-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Static admin
// routes win over the catch-all relay route.
func RegisterRoutes(e *echo.Echo, relay *RelayHandler, health *HealthHandler, cfg *config.Config, m *metrics.Metrics) {
	e.GET(metrics.AdminPrefix+"/healthz", health.Healthz)
	e.GET(metrics.AdminPrefix+"/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/", relay.Handle)
	e.Any("/*", relay.Handle)
}
