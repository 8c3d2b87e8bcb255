package core

import "github.com/pkg/errors"

// ErrPermissionDenied is returned when the acting principal may not perform
// an operation on behalf of another student.
var ErrPermissionDenied = errors.New("permission denied")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// integrity is a data-integrity fault: an invariant that should be unreachable
// in correct operation was violated (negative extension balance, duplicate
// teams with identical membership, ...). It is never auto-corrected and never
// translated into a user-facing rejection; it propagates undisguised.
type integrity struct {
	message string
}

func NewIntegrityError(msg string) error {
	return &integrity{message: msg}
}

func (e integrity) Error() string {
	return e.message
}

func IsIntegrityError(err error) bool {
	_, ok := errors.Cause(err).(*integrity)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
