package elo

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the only failure kind of the engine. Every error
// returned by this package matches it with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError names the argument that was rejected.
type InvalidInputError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s %s (got %v)", e.Field, e.Reason, e.Value)
}

// Is reports whether target is ErrInvalidInput.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field string, value interface{}, reason string) error {
	return &InvalidInputError{Field: field, Value: value, Reason: reason}
}
