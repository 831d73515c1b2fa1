// Package allowlist parses the configured host allowlist and decides whether
// a target host may be contacted.
package allowlist

import "strings"

// isDelimiter reports whether r separates entries in a raw host list.
// Commas, tabs, quotes, pipes and line breaks all act as separators so that
// values pasted from JSON arrays, CSV or multi-line env vars parse the same.
func isDelimiter(r rune) bool {
	switch r {
	case ',', '\t', '"', '\'', '|', '\r', '\n':
		return true
	}
	return false
}

// Parse turns a raw, delimiter-noisy host list into an ordered list of hosts.
// Runs of delimiters collapse, leading and trailing delimiters are ignored and
// empty tokens are dropped, so an empty input yields an empty list.
func Parse(raw string) []string {
	fields := strings.FieldsFunc(raw, isDelimiter)
	hosts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			hosts = append(hosts, f)
		}
	}
	return hosts
}

// Allowed reports whether host may be contacted. An empty list allows every
// host; otherwise host must equal one entry exactly (case and port included).
func Allowed(host string, hosts []string) bool {
	if len(hosts) == 0 {
		return true
	}
	for _, h := range hosts {
		if h == host {
			return true
		}
	}
	return false
}
