// Package redact masks secrets that embedded target URLs carry into logs and
// error messages.
package redact

import "regexp"

// userinfoPattern matches "user:password@" at the start of a string or after a
// "/", which covers "scheme://user:pw@", the single-slash "scheme:/user:pw@"
// form and bare "user:pw@host" targets.
var userinfoPattern = regexp.MustCompile(`((?:^|/)[^/?#@\s":]*:)[^/?#@\s"]*@`)

// Credentials replaces every password in s with [REDACTED].
func Credentials(s string) string {
	return userinfoPattern.ReplaceAllString(s, "${1}[REDACTED]@")
}
