// Package utils provides shared utilities for text normalization and logging.
package utils

import "strings"

// LabelSeparator separates alternate spellings inside a label field.
const LabelSeparator = ";"

// NormalizeText trims surrounding whitespace and lowercases s. It is applied to
// every text field at index time and to every query string at search time.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FirstLabel returns the first non-empty element of a semicolon-delimited label list,
// trimmed. Returns "" when the list holds no label.
func FirstLabel(labels string) string {
	for _, part := range strings.Split(labels, LabelSeparator) {
		if p := strings.TrimSpace(part); p != "" {
			return p
		}
	}
	return ""
}

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
