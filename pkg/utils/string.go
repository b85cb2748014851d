package utils

import (
	"strings"
	"unicode"
)

// SanitizeLabel removes control characters from a display label and trims
// surrounding whitespace.
func SanitizeLabel(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// SanitizeFileName turns an arbitrary label into a safe file name component:
// whitespace becomes underscores, path separators and other unsafe runes are
// dropped.
func SanitizeFileName(s string) string {
	s = SanitizeLabel(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			// skip
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "recording"
	}
	return b.String()
}

// TruncateString truncates a string to max length.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
