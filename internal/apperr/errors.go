// Package apperr defines the error classes shared by the vault layers.
package apperr

import "errors"

// Sentinel errors. Transports map these to user-facing results.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrReadOnly      = errors.New("note is read-only")
	ErrInvalidName   = errors.New("invalid note name")
)

// ValidationError reports a note name rejected by the vault naming policy.
// It matches ErrInvalidName with errors.Is.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid note name: " + e.Reason
}

// Is reports whether target is ErrInvalidName.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidName
}
