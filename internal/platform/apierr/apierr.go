package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries the HTTP status and machine readable code a handler should
// respond with. Message, when set, is shown to the caller instead of Err.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Newf builds an Error whose message is also its cause.
func Newf(status int, code string, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Err: fmt.Errorf(format, args...)}
}

// WithMessage returns an Error that shows msg to the caller and keeps err for logs.
func WithMessage(status int, code, msg string, err error) *Error {
	return &Error{Status: status, Code: code, Message: msg, Err: err}
}

func BadRequest(code string, format string, args ...any) *Error {
	return Newf(http.StatusBadRequest, code, format, args...)
}

func Unauthorized(code string, format string, args ...any) *Error {
	return Newf(http.StatusUnauthorized, code, format, args...)
}

func NotFound(code string, format string, args ...any) *Error {
	return Newf(http.StatusNotFound, code, format, args...)
}

func Unprocessable(code string, format string, args ...any) *Error {
	return Newf(http.StatusUnprocessableEntity, code, format, args...)
}

// From extracts the status and code of err, defaulting to 500.
func From(err error) (int, string) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, ae.Code
	}
	return http.StatusInternalServerError, "internal_error"
}
