package validation

import (
	"errors"
	"strings"
	"unicode"
)

// MaxQueryLen bounds a city query in runes. Longer form values are rejected at the HTTP layer.
const MaxQueryLen = 200

// ErrQueryEmpty is returned when the query is empty or whitespace-only after trim.
var ErrQueryEmpty = errors.New("query is required")

// ErrQueryTooLong is returned when the query exceeds MaxQueryLen runes.
var ErrQueryTooLong = errors.New("query too long")

// ErrQueryInvalidChars is returned when the query contains control characters.
var ErrQueryInvalidChars = errors.New("query contains invalid characters")

// NormalizeQuery trims surrounding whitespace and reports ErrQueryEmpty for blank input.
// Everything else is passed through unchanged; spelling is the weather API's call.
func NormalizeQuery(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrQueryEmpty
	}
	return s, nil
}

// CheckFormValue guards raw request input before it reaches a widget. Empty values are allowed
// (they produce a validation outcome, not a request error).
func CheckFormValue(input string) error {
	if len([]rune(input)) > MaxQueryLen {
		return ErrQueryTooLong
	}
	for _, c := range input {
		if unicode.IsControl(c) && c != '\t' {
			return ErrQueryInvalidChars
		}
	}
	return nil
}

// SuggestKey is the cache key for a suggestion query: trimmed, lowercased, inner runs of
// whitespace collapsed.
func SuggestKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
