package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Type string

const (
	TypeValidation   Type = "validation_error"
	TypeUnauthorized Type = "unauthorized"
	TypeForbidden    Type = "forbidden"
	TypeNotFound     Type = "not_found"
	TypeConflict     Type = "conflict"
	TypeRateLimited  Type = "rate_limited"
	TypeExternal     Type = "external_error"
	TypeInternal     Type = "internal_error"
)

const (
	CodeDuplicateFeedback = "DUPLICATE_FEEDBACK"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeEmailTaken        = "EMAIL_TAKEN"
	CodeRateLimited       = "RATE_LIMITED"
)

// Error is an application error that knows how it should surface to a caller.
type Error struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

func Validation(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = "Unauthorized"
	}
	return &Error{Type: TypeUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "Forbidden"
	}
	return &Error{Type: TypeForbidden, Message: message}
}

func NotFound(resource, id string) *Error {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s %s not found", resource, id)
	}
	return &Error{Type: TypeNotFound, Message: msg}
}

func Conflict(message, code string) *Error {
	return &Error{Type: TypeConflict, Message: message, Code: code}
}

func RateLimited() *Error {
	return &Error{Type: TypeRateLimited, Message: "Too many requests, please try again later", Code: CodeRateLimited}
}

func External(message string, err error) *Error {
	return &Error{Type: TypeExternal, Message: message, Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Type: TypeInternal, Message: message, Err: err}
}

func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsType(err error, t Type) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t
}
