package stringutil

import (
	"strings"
	"unicode"
)

// IsIdentifier reports whether s matches [A-Za-z_][A-Za-z0-9_]*.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// Truncate shortens s to at most n runes, appending an ellipsis when
// truncation occurred.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// IsQuoted reports whether s is wrapped in matching single or double quotes.
func IsQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return (first == '\'' && last == '\'') || (first == '"' && last == '"')
}

// Unquote strips one layer of matching single or double quotes.
func Unquote(s string) string {
	if IsQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

// NormalizeIdent lowercases an identifier and strips surrounding
// whitespace, matching the case-insensitive treatment of SQL table names.
func NormalizeIdent(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
