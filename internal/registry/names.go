package registry

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxEventNameLength is the longest accepted event name, in runes.
const MaxEventNameLength = 128

// ErrInvalidEventName is wrapped by every ValidationError raised for an event name.
var ErrInvalidEventName = errors.New("invalid event name")

// ValidationError rejects input at the ingestion or registration boundary.
// Nothing is recorded when one is returned.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	if e.Field == "event_name" {
		return ErrInvalidEventName
	}
	return nil
}

// NormalizeName trims and case-folds an event name and rejects names that are
// empty, too long, or contain whitespace or control characters.
func NormalizeName(name string) (string, error) {
	// cases.Caser keeps state, so one is built per call
	folded := cases.Lower(language.Und).String(strings.TrimSpace(name))

	if folded == "" {
		return "", &ValidationError{Field: "event_name", Value: name, Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(folded) > MaxEventNameLength {
		return "", &ValidationError{Field: "event_name", Value: name,
			Reason: fmt.Sprintf("longer than %d characters", MaxEventNameLength)}
	}
	for _, r := range folded {
		if r == utf8.RuneError || unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", &ValidationError{Field: "event_name", Value: name, Reason: "contains whitespace or control characters"}
		}
	}
	return folded, nil
}
