// Package logutil holds small helpers for safe log output.
package logutil

import "strings"

// SanitizeForLog strips control characters from user-influenced strings
// before they reach the log, so a crafted hostname or username cannot
// inject fake log lines.
func SanitizeForLog(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case r < 32:
			return -1
		default:
			return r
		}
	}, s)
}
