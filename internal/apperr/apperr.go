// Package apperr defines the single error contract shared by every layer:
// an error kind, a caller-facing message and the HTTP status it maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind string

const (
	KindConfig       Kind = "config"
	KindUpstream     Kind = "upstream"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error is the tagged error value threaded through the engine and the
// external-call wrappers.
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending request field for validation errors.
	Field string
	// Service and Status describe the upstream call for KindUpstream.
	Service string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Config(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a missing or malformed request field.
func Validation(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// MissingField is the message shape used for absent required fields.
func MissingField(field string) *Error {
	return Validation(field, "Missing required field: %s", field)
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a failed call to an external provider. status is the
// provider's HTTP status, or 0 when the request never got a response.
func Upstream(service string, status int, err error) *Error {
	msg := fmt.Sprintf("%s request failed", service)
	if status > 0 {
		msg = fmt.Sprintf("%s request failed with status %d", service, status)
	}
	return &Error{Kind: KindUpstream, Service: service, Status: status, Message: msg, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the error kind, defaulting to KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus returns the response status for any error.
func HTTPStatus(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// UpstreamStatus returns the provider status carried by an upstream error, or 0.
func UpstreamStatus(err error) int {
	if e, ok := As(err); ok && e.Kind == KindUpstream {
		return e.Status
	}
	return 0
}
