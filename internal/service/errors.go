package service

import (
	"errors"
)

var (
	// ErrMalformedTarget is returned when the embedded target cannot be
	// decoded or parsed into an absolute URL.
	ErrMalformedTarget = errors.New("malformed target")
	// ErrBodyEncoding is returned when the inbound body does not match the
	// format its content-type claims.
	ErrBodyEncoding = errors.New("request body encoding failed")
	// ErrUpstream is returned when the outbound call fails before a response arrives.
	ErrUpstream = errors.New("upstream request failed")
)

// HostDeniedError is returned when the target host is not in a non-empty allowlist.
type HostDeniedError struct {
	Host string
}

func (e *HostDeniedError) Error() string {
	return "unauthorized host: " + e.Host
}

// Error kinds reported in logs and metrics.
const (
	KindMalformedTarget = "malformed_target"
	KindHostDenied      = "host_denied"
	KindBodyEncoding    = "body_encoding"
	KindUpstream        = "upstream"
	KindInternal        = "internal"
)

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	var denied *HostDeniedError
	switch {
	case errors.As(err, &denied):
		return KindHostDenied
	case errors.Is(err, ErrMalformedTarget):
		return KindMalformedTarget
	case errors.Is(err, ErrBodyEncoding):
		return KindBodyEncoding
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindInternal
	}
}
