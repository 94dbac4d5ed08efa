package model

import "errors"

// ErrNotFound is returned when a referenced asset, category or task is unknown.
var ErrNotFound = errors.New("not found")

// ValidationError is raised before any remote call when input is rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid returns a ValidationError with the given message.
func Invalid(msg string) error {
	return &ValidationError{Message: msg}
}
