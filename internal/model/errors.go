package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrValidation is the sentinel matched by every ValidationError.
var ErrValidation = eris.New("validation failed")

// ValidationError reports malformed caller input: override answers,
// identifiers reaching the query builder, or a structurally broken mapping.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
