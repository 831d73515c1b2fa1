package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-relay-go/internal/redact"
)

// NewErrorHandler returns an Echo error handler that renders framework
// errors (not found, body limit, rate limit, recovered panics) in the relay's
// {code, msg} JSON shape, keeping the framework's status code.
func NewErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := sanitizeError(err)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
		}

		if code >= http.StatusInternalServerError {
			logger.Error("unhandled error", "err", sanitizeError(err), "path", redact.Credentials(c.Request().URL.Path))
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, errorResponse{Code: codeFailure, Msg: msg})
		}
		if werr != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}
