// Package service implements the relay pipeline: target validation, allowlist
// enforcement, request translation and the outbound call.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"cors-relay-go/internal/allowlist"
	"cors-relay-go/internal/model"
	"cors-relay-go/internal/target"
)

// HostListSource exposes the raw allowlist. It is read on every request and
// must be safe for concurrent use.
type HostListSource interface {
	HostList() string
}

// Upstream performs the single outbound call for a relayed request.
type Upstream interface {
	DoStream(ctx context.Context, out *model.OutboundRequest) (*model.RelayResponse, error)
}

// Gateway relays inbound requests to their embedded targets. It holds no
// per-request state.
type Gateway struct {
	upstream Upstream
	hosts    HostListSource
	logger   *slog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(upstream Upstream, hosts HostListSource, logger *slog.Logger) *Gateway {
	return &Gateway{
		upstream: upstream,
		hosts:    hosts,
		logger:   logger.With("component", "gateway"),
	}
}

// Hosts returns the currently configured allowlist, parsed.
func (g *Gateway) Hosts() []string {
	return allowlist.Parse(g.hosts.HostList())
}

// Forward normalizes the target, enforces the allowlist, translates the
// request and replays it. The caller is responsible for closing the response body.
func (g *Gateway) Forward(in *model.InboundRequest) (*model.RelayResponse, error) {
	u, err := target.Parse(in.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTarget, err)
	}

	host := target.Host(u)
	if !allowlist.Allowed(host, g.Hosts()) {
		return nil, &HostDeniedError{Host: host}
	}

	out, err := Translate(in, u.String())
	if err != nil {
		return nil, err
	}

	g.logger.Debug("forwarding request",
		"method", out.Method,
		"host", host,
		"body_bytes", len(out.Body),
	)

	ctx := in.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := g.upstream.DoStream(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return resp, nil
}
