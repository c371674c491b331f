package logger

import "regexp"

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI returns s without colour escape sequences.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
