package enums

import "fmt"

// DedupPrecedence decides which copy of an ad wins when the embedded page
// snapshot and a paginated response both carry the same ad archive id. The
// source portal appears to serve the snapshot copy first, but the intended
// direction is uncertain, so it stays configurable.
type DedupPrecedence string

const (
	DedupPrecedenceFirst DedupPrecedence = "first"
	DedupPrecedenceLast  DedupPrecedence = "last"
)

var validDedupPrecedences = []DedupPrecedence{
	DedupPrecedenceFirst,
	DedupPrecedenceLast,
}

// String returns the literal string for the precedence.
func (d DedupPrecedence) String() string {
	return string(d)
}

// IsValid reports whether the precedence is known.
func (d DedupPrecedence) IsValid() bool {
	for _, candidate := range validDedupPrecedences {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDedupPrecedence converts raw input into a DedupPrecedence.
func ParseDedupPrecedence(value string) (DedupPrecedence, error) {
	for _, candidate := range validDedupPrecedences {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dedup precedence %q", value)
}
