// Package target extracts and repairs the destination URL embedded in an
// inbound request path.
package target

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrEmptyHost is returned when a normalized target has no host component.
var ErrEmptyHost = errors.New("target has no host")

// Extract returns the percent-decoded target embedded in u: everything after
// the first "/" of the path, including the query string. The root path yields
// an empty target regardless of any query.
func Extract(u *url.URL) (string, error) {
	path := u.EscapedPath()
	if path == "" || path == "/" {
		return "", nil
	}

	raw := path
	if u.RawQuery != "" {
		raw += "?" + u.RawQuery
	}
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[i+1:]
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("decode target %q: %w", raw, err)
	}
	return decoded, nil
}

// Normalize repairs a partial target into an absolute URL string. A value
// containing "://" is returned as is, a single-slash scheme separator ":/" is
// widened once, and anything else is treated as a plain http host.
func Normalize(raw string) string {
	switch {
	case strings.Contains(raw, "://"):
		return raw
	case strings.Contains(raw, ":/"):
		return strings.Replace(raw, ":/", "://", 1)
	default:
		return "http://" + raw
	}
}

// Parse normalizes raw and parses it into an absolute URL with a host.
func Parse(raw string) (*url.URL, error) {
	normalized := Normalize(raw)
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse target %q: %w", normalized, ErrEmptyHost)
	}
	return u, nil
}

// defaultPorts are dropped from a host before it is compared.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// Host returns the canonical host of u: lowercased, with the scheme's default
// port and an empty port removed. "HTTP://A.com:80/" yields "a.com".
func Host(u *url.URL) string {
	host := strings.ToLower(u.Host)
	port := u.Port()
	if port == "" || port == defaultPorts[strings.ToLower(u.Scheme)] {
		host = strings.TrimSuffix(host, ":"+port)
	}
	return host
}
