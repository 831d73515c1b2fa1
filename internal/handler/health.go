package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-relay-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	gateway *service.Gateway
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(gw *service.Gateway, v Version) *HealthHandler {
	return &HealthHandler{gateway: gw, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the build version and the allowlist currently in effect.
func (h *HealthHandler) Status(c echo.Context) error {
	hosts := h.gateway.Hosts()
	return c.JSON(http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           string(h.version),
		"allowlist_entries": len(hosts),
		"allow_all_hosts":   len(hosts) == 0,
	})
}
