// Package middleware provides Echo middleware for the relay: CORS, hop-by-hop
// stripping, logging and metrics.
package middleware

import (
	"github.com/labstack/echo/v4"
)

// CORS response values. Clients depend on these exact strings.
const (
	AllowOrigin         = "*"
	AllowMethods        = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	DefaultAllowHeaders = "Accept, Authorization, Cache-Control, Content-Type, DNT, If-Modified-Since, Keep-Alive, Origin, User-Agent, X-Requested-With, Token, x-access-token"
)

// CORS returns an Echo middleware that attaches permissive cross-origin
// headers to every response. The headers are set before the handler runs so
// that error responses written anywhere down the chain carry them too.
//
// Allow-Headers echoes the request's own Access-Control-Allow-Headers header
// when present.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			allowHeaders := c.Request().Header.Get(echo.HeaderAccessControlAllowHeaders)
			if allowHeaders == "" {
				allowHeaders = DefaultAllowHeaders
			}

			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, AllowOrigin)
			h.Set(echo.HeaderAccessControlAllowMethods, AllowMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)

			return next(c)
		}
	}
}
