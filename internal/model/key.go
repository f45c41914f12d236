package model

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxKeyLength bounds a key so it stays usable as a header value and log field.
const MaxKeyLength = 32

// ValidationError reports an empty or malformed key.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return "invalid key: " + e.Reason
	}
	return fmt.Sprintf("invalid key %q: %s", e.Key, e.Reason)
}

// NormalizeKey returns the canonical form of a key.
// The canonical form is trimmed and upper-cased; it is used for add, remove,
// list and scheduling alike.
func NormalizeKey(raw string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == "" {
		return "", &ValidationError{Reason: "stock symbol cannot be empty"}
	}
	if len(key) > MaxKeyLength {
		return "", &ValidationError{Key: key, Reason: fmt.Sprintf("longer than %d characters", MaxKeyLength)}
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", &ValidationError{Key: key, Reason: "contains whitespace or control characters"}
		}
	}
	return key, nil
}
