package enums

import "fmt"

// SearchType selects how the ad library is queried.
type SearchType string

const (
	SearchTypeKeyword    SearchType = "keyword"
	SearchTypeAdvertiser SearchType = "advertiser"
)

var validSearchTypes = []SearchType{
	SearchTypeKeyword,
	SearchTypeAdvertiser,
}

// String returns the literal string for the type.
func (s SearchType) String() string {
	return string(s)
}

// IsValid reports whether the type is known.
func (s SearchType) IsValid() bool {
	for _, candidate := range validSearchTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSearchType converts raw input into a SearchType.
func ParseSearchType(value string) (SearchType, error) {
	for _, candidate := range validSearchTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid search type %q", value)
}
