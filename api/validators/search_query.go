package validators

import (
	"regexp"
	"strings"
	"unicode"

	pkgerrors "github.com/adlibra/adlibra-backend/pkg/errors"
)

const (
	searchQueryMinLen = 2
	searchQueryMaxLen = 100
)

// Hangul syllables and jamo plus basic latin, digits and a few join
// characters. Everything else is rejected outright rather than stripped.
var searchQueryPattern = regexp.MustCompile(`^[\x{AC00}-\x{D7A3}\x{1100}-\x{11FF}\x{3130}-\x{318F}a-zA-Z0-9\s\-_.&]+$`)

// ValidateSearchQuery normalizes a search query and returns it, or a
// validation error describing why it cannot be used.
func ValidateSearchQuery(raw string) (string, error) {
	query := strings.TrimSpace(raw)
	if len([]rune(query)) < searchQueryMinLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "search query too short").
			WithDetails(map[string]any{"min": searchQueryMinLen})
	}
	if len([]rune(query)) > searchQueryMaxLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "search query too long").
			WithDetails(map[string]any{"max": searchQueryMaxLen})
	}
	for _, r := range query {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "search query contains unprintable characters")
		}
	}
	if !searchQueryPattern.MatchString(query) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "search query contains unsupported characters")
	}
	return query, nil
}
