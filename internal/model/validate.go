package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Require returns a ValidationError naming the first empty value.
func Require(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return Invalid(fields[i], "is required")
		}
	}
	return nil
}

// RuneLen counts characters rather than bytes.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// ValidProgress reports whether p is a percentage.
func ValidProgress(p int) bool {
	return p >= 0 && p <= 100
}

// MinBirthYear and MaxBirthYear bound accepted birth years.
const (
	MinBirthYear = 1900
	MaxBirthYear = 2010
)

// ValidBirthYear reports whether y is inside the accepted birth-year window.
func ValidBirthYear(y int) bool {
	return y >= MinBirthYear && y <= MaxBirthYear
}

// ShortID returns the first eight characters of an id, or "-" when empty.
func ShortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SourceNote is the provenance tag written by automated imports.
func SourceNote(taskID string) string {
	return "AI(" + ShortID(taskID) + ")"
}
