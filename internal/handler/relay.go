package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-relay-go/internal/config"
	"cors-relay-go/internal/metrics"
	"cors-relay-go/internal/model"
	"cors-relay-go/internal/redact"
	"cors-relay-go/internal/service"
	"cors-relay-go/internal/target"
)

// Usage is the usage string reported by the root response.
const Usage = "Host/{URL}"

// Relay error codes carried in JSON error bodies.
const (
	codeOK         = 0
	codeFailure    = -1
	codeHostDenied = -2
)

const copyBufferBytes = 32 * 1024

type usageResponse struct {
	Code   int    `json:"code"`
	Usage  string `json:"usage"`
	Source string `json:"source"`
}

type errorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// RelayHandler serves the root usage document and relays every other path
// to the target embedded in it.
type RelayHandler struct {
	gateway *service.Gateway
	source  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler. The metrics parameter is optional.
func NewRelayHandler(gw *service.Gateway, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		gateway: gw,
		source:  cfg.Gateway.Source,
		metrics: m,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle answers the root path with a usage document, otherwise forwards the
// request to its embedded target and streams the response back. Relay
// failures become JSON error bodies; only framework errors are returned to Echo.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	raw, err := target.Extract(req.URL)
	if err != nil {
		return h.mapError(c, fmt.Errorf("%w: %w", service.ErrMalformedTarget, err))
	}
	if raw == "" {
		h.observe(metrics.OutcomeRoot)
		return c.JSON(http.StatusOK, usageResponse{
			Code:   codeOK,
			Usage:  Usage,
			Source: h.source,
		})
	}

	resp, err := h.gateway.Forward(&model.InboundRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Target: raw,
		Header: req.Header,
		Body:   req.Body,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	h.observe(metrics.OutcomeProxied)

	if resp.ContentType != "" {
		c.Response().Header().Set(echo.HeaderContentType, resp.ContentType)
	}
	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent; a failure mid-stream leaves the client
	// with a truncated body, so it can only be logged.
	if _, err := copyFlush(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", redact.Credentials(req.URL.Path),
		)
	}

	return nil
}

func (h *RelayHandler) mapError(c echo.Context, err error) error {
	kind := service.Kind(err)
	msg := sanitizeError(err)

	h.observe(metrics.OutcomeError)
	if h.metrics != nil {
		h.metrics.RelayErrors.WithLabelValues(kind).Inc()
	}

	// Framework errors surfaced while reading the body, such as the body
	// limit, keep their status and go through the central error handler.
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	var denied *service.HostDeniedError
	if errors.As(err, &denied) {
		h.logger.Warn("relay denied", "host", denied.Host)
		return c.JSON(http.StatusForbidden, errorResponse{
			Code: codeHostDenied,
			Msg:  denied.Error(),
		})
	}

	h.logger.Error("relay error",
		"err", msg,
		"kind", kind,
		"path", redact.Credentials(c.Request().URL.Path),
	)
	return c.JSON(http.StatusInternalServerError, errorResponse{
		Code: codeFailure,
		Msg:  msg,
	})
}

func (h *RelayHandler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.RelayOutcomes.WithLabelValues(outcome).Inc()
	}
}

// copyFlush copies src to the response, flushing after every chunk so that
// streamed upstream bodies reach the client without buffering.
func copyFlush(dst *echo.Response, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferBytes)
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			dst.Flush()
		}
		if errors.Is(rerr, io.EOF) {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// sanitizeError redacts URL passwords from error messages that may contain target URLs.
func sanitizeError(err error) string {
	return redact.Credentials(err.Error())
}
