package utils

import (
	"strings"
	"unicode"
)

// SanitizeString strips control characters (keeping newlines and tabs) and
// trims surrounding whitespace. Chat bodies pass through here before they
// are stored or relayed.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// TruncateString shortens a string to maxLen, marking the cut with an
// ellipsis when there is room for one.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
