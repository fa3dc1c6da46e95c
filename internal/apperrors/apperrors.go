// Package apperrors classifies engine errors into the wire-facing taxonomy
// described in spec §7: Validation, NotFound, Forbidden, Conflict, Transient,
// Internal. Transport layers (server/httpapi) translate a Category to a
// status code. The Scheduler and ActionEvaluator do not consult it: they
// record every failure as a per-item outcome and never abort a batch.
package apperrors

import (
	"errors"
	"fmt"
)

// Category is one of the six error kinds from spec §7.
type Category int

const (
	// Internal is the zero value so an unclassified error fails safe as
	// opaque rather than silently looking like a Validation error.
	Internal Category = iota
	Validation
	NotFound
	Forbidden
	Conflict
	Transient
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	case Transient:
		return "transient"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with its Category and an optional machine
// code (e.g. "would_create_cycle") used by callers that branch on the exact
// failure rather than just its category.
type Error struct {
	Err      error
	Code     string
	Category Category
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(category Category, code string, format string, args ...any) *Error {
	return &Error{Category: category, Code: code, Err: fmt.Errorf(format, args...)}
}

// Validationf builds a Validation error.
func Validationf(format string, args ...any) *Error {
	return newErr(Validation, "", format, args...)
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return newErr(NotFound, "", format, args...)
}

// Forbiddenf builds a Forbidden error.
func Forbiddenf(format string, args ...any) *Error {
	return newErr(Forbidden, "", format, args...)
}

// Conflictf builds a Conflict error carrying a machine-readable code, e.g.
// "would_create_cycle" or "duplicate_dependency".
func Conflictf(code, format string, args ...any) *Error {
	return newErr(Conflict, code, format, args...)
}

// Transientf builds a Transient error.
func Transientf(format string, args ...any) *Error {
	return newErr(Transient, "", format, args...)
}

// Internalf builds an Internal error for a broken runtime invariant.
func Internalf(format string, args ...any) *Error {
	return newErr(Internal, "", format, args...)
}

// WouldCreateCycle is the well-known Conflict code for TaskGraph insertion
// rejections (spec §4.3, §8 boundary behavior).
const WouldCreateCycle = "would_create_cycle"

// CategoryOf returns the Category of err, defaulting to Internal for errors
// that were never classified — matching §7's "never swallowed" rule for
// broken invariants.
func CategoryOf(err error) Category {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Category
	}
	return Internal
}

// Is reports whether err is an *Error of the given category.
func Is(err error, category Category) bool {
	return CategoryOf(err) == category
}

// CodeOf returns the machine-readable code of err, or "" if unset or
// unclassified.
func CodeOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return ""
}
