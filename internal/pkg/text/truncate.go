package text

import "unicode/utf8"

// Truncate cuts s to at most max bytes, never splitting a UTF-8 rune, and
// appends "..." when something was removed.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// MaskSecret keeps only the last four characters of a credential.
func MaskSecret(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
