package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-rumble/internal/server"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    strings.ToLower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    strings.ToLower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    "Unauthorized user",
	}
}

// statusFor maps a chat server error kind to its HTTP status. Non-members
// get 401, same as a bad token.
func statusFor(err error) int {
	switch {
	case errors.Is(err, server.ErrConflict), errors.Is(err, server.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, server.ErrUnauthorized), errors.Is(err, server.ErrForbidden):
		return http.StatusUnauthorized
	case errors.Is(err, server.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// NewChatError converts an error returned by the chat server. Details of
// internal failures are kept out of the message.
func NewChatError(err error) *ApiError {
	var chatErr *server.Error
	if !errors.As(err, &chatErr) {
		return NewInternalServerError(err)
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return &ApiError{
			StatusCode: status,
			Message:    chatErr.Message,
			Err:        err,
		}
	}

	return &ApiError{
		StatusCode: status,
		Message:    chatErr.Message,
	}
}
