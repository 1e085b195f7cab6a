package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the machine-readable class of a failure.
type ErrorKind string

const (
	ErrTypeNotFound     ErrorKind = "TypeNotFound"
	ErrNotFound         ErrorKind = "NotFound"
	ErrForbidden        ErrorKind = "Forbidden"
	ErrUnauthenticated  ErrorKind = "Unauthenticated"
	ErrValidationFailed ErrorKind = "ValidationFailed"
	ErrStorageConflict  ErrorKind = "StorageConflict"
	ErrInternal         ErrorKind = "InternalError"
)

// Recoverable reports whether errors of this kind are rendered to the
// client rather than aborting the call.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrTypeNotFound, ErrNotFound, ErrForbidden, ErrUnauthenticated, ErrValidationFailed:
		return true
	}
	return false
}

// Error is a classified failure.
type Error struct {
	Kind    ErrorKind
	TypeID  string
	Message string
	Err     error
}

// NewError builds an Error with a formatted message.
func NewError(kind ErrorKind, typeID, format string, args ...any) *Error {
	return &Error{Kind: kind, TypeID: typeID, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies err under kind.
func WrapError(kind ErrorKind, typeID string, err error) *Error {
	return &Error{Kind: kind, TypeID: typeID, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.TypeID != "" {
		return fmt.Sprintf("%s: %s (type %s)", e.Kind, e.Message, e.TypeID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies err. Unclassified errors report ErrInternal and false.
func KindOf(err error) (ErrorKind, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind, true
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrValidationFailed, true
	}
	return ErrInternal, false
}

// Recoverable reports whether err is a recognized failure that can be
// shown to the caller as a structured error.
func Recoverable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind.Recoverable()
}

// TypeIDOf returns the type id carried by err, if any.
func TypeIDOf(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.TypeID
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.TypeID
	}
	return ""
}

// HTTPStatus returns the status code errors of this kind are reported with.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrTypeNotFound, ErrNotFound:
		return http.StatusNotFound
	case ErrForbidden:
		return http.StatusForbidden
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrValidationFailed:
		return http.StatusBadRequest
	case ErrStorageConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ErrorDetail is the client-visible form of a failure.
type ErrorDetail struct {
	Message string       `json:"message"`
	TypeID  string       `json:"type,omitempty"`
	Kind    ErrorKind    `json:"error_code"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// ErrorBody wraps an ErrorDetail the way it is sent on the wire.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// Describe returns the client-visible detail for err. Unclassified errors
// are reported as internal without their message.
func Describe(err error) ErrorDetail {
	kind, ok := KindOf(err)
	if !ok {
		return ErrorDetail{Message: "internal server error", Kind: ErrInternal}
	}
	d := ErrorDetail{Kind: kind, TypeID: TypeIDOf(err)}
	var me *Error
	var ve *ValidationError
	switch {
	case errors.As(err, &me):
		d.Message = me.Message
	case errors.As(err, &ve):
		d.Message = ve.Error()
		d.Fields = ve.Errors
	}
	return d
}
