// Package model defines shared types for the relay.
package model

import (
	"context"
	"io"
	"net/http"
)

// InboundRequest is a client request whose embedded target has already been
// extracted from the path.
type InboundRequest struct {
	Ctx    context.Context
	Method string
	Target string // decoded target, not yet normalized
	Header http.Header
	Body   io.Reader
}

// OutboundRequest is the request replayed against the target.
type OutboundRequest struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte // nil when the method carries no body
}

// RelayResponse is the upstream response to be streamed back.
type RelayResponse struct {
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
}
