package storage

import (
	"errors"
	"fmt"
)

// ErrorType classifies storage errors. It implements error so that
// errors.Is(err, storage.ErrNotFound) works on any wrapped *Error.
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
)

func (t ErrorType) Error() string { return string(t) }

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func NewError(typ ErrorType, message string, err error) *Error {
	return &Error{Type: typ, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(ErrorType)
	return ok && t == e.Type
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// TaskNotFound is the error every backend returns for an unknown task id.
func TaskNotFound(id string) *Error {
	return NewError(ErrNotFound, "task "+id+" not found", nil)
}
