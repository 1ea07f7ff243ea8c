package server

import (
	"errors"
	"fmt"
)

// Error kinds returned by the chat server. Every error returned from an
// operation is an *Error wrapping exactly one of them.
var (
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalid      = errors.New("invalid argument")
	ErrPersistence  = errors.New("persistence failure")
	ErrInternal     = errors.New("internal error")
)

type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}

	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

func persistenceError(err error, format string, args ...any) *Error {
	return &Error{
		Kind:    ErrPersistence,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func internalError(err error, format string, args ...any) *Error {
	return &Error{
		Kind:    ErrInternal,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func errUnauthorizedUser() *Error {
	return newError(ErrUnauthorized, "Unauthorized user")
}

func errRoomNotFound() *Error {
	return newError(ErrNotFound, "Room not found")
}
