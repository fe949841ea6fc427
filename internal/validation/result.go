// Package validation checks single fields, composite forms and record uniqueness
// before anything is written to a persistence backend.
package validation

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/onoacademic/campusid/internal/domain"
)

// FieldResult is the outcome of validating a single value
type FieldResult struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`

	conflict bool
}

// IsConflict reports whether the failure came from a uniqueness check
func (r FieldResult) IsConflict() bool {
	return r.conflict
}

func valid() FieldResult {
	return FieldResult{IsValid: true}
}

func invalid(msg string) FieldResult {
	return FieldResult{IsValid: false, Error: msg}
}

func invalidf(format string, args ...any) FieldResult {
	return invalid(fmt.Sprintf(format, args...))
}

func conflict(msg string) FieldResult {
	return FieldResult{IsValid: false, Error: msg, conflict: true}
}

// FormResult aggregates every field error of a form
type FormResult struct {
	IsValid bool              `json:"isValid"`
	Errors  map[string]string `json:"errors"`

	conflicts []string
}

func newFormResult() *FormResult {
	return &FormResult{Errors: map[string]string{}}
}

func (r *FormResult) add(field string, res FieldResult) bool {
	if res.IsValid {
		return true
	}
	r.Errors[field] = res.Error
	if res.conflict {
		r.conflicts = append(r.conflicts, field)
	}
	return false
}

func (r *FormResult) finish() FormResult {
	r.IsValid = len(r.Errors) == 0
	return *r
}

// Conflicts lists the fields that failed a uniqueness check
func (r FormResult) Conflicts() []string {
	return slices.Clone(r.conflicts)
}

// Err converts an invalid result into a *FormError, or nil when valid
func (r FormResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &FormError{Errors: maps.Clone(r.Errors), Conflicts: r.Conflicts()}
}

// FormError is returned by validated writes that were rejected before persistence
type FormError struct {
	Errors    map[string]string
	Conflicts []string
}

func (e *FormError) Error() string {
	fields := slices.Sorted(maps.Keys(e.Errors))
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e.Errors[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *FormError) Unwrap() []error {
	errs := []error{domain.ErrValidation}
	if len(e.Conflicts) > 0 {
		errs = append(errs, domain.ErrUniquenessConflict)
	}
	return errs
}
