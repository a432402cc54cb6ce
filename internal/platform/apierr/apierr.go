package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the error taxonomy shared by coordinators, the supervisor and HTTP handlers.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindAlreadyInProgress   Kind = "already_in_progress"
	KindNotReady            Kind = "not_ready"
	KindConflict            Kind = "conflict"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindCollaboratorFailure Kind = "collaborator_failure"
	KindTimeout             Kind = "timeout"
	KindInternal            Kind = "internal"
)

var kindStatus = map[Kind]int{
	KindInvalidInput:        http.StatusBadRequest,
	KindNotFound:            http.StatusNotFound,
	KindAlreadyInProgress:   http.StatusConflict,
	KindNotReady:            http.StatusConflict,
	KindConflict:            http.StatusConflict,
	KindUnauthorized:        http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindCollaboratorFailure: http.StatusBadGateway,
	KindTimeout:             http.StatusGatewayTimeout,
	KindInternal:            http.StatusInternalServerError,
}

type Error struct {
	Kind   Kind
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
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

// New keeps the status/code form for handler-local errors that have no taxonomy kind.
func New(status int, code string, err error) *Error {
	return &Error{Kind: KindInternal, Status: status, Code: code, Err: err}
}

func Wrap(kind Kind, err error) *Error {
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{Kind: kind, Status: status, Code: string(kind), Err: err}
}

func newf(kind Kind, format string, args ...any) *Error {
	return Wrap(kind, fmt.Errorf(format, args...))
}

func InvalidInput(format string, args ...any) *Error {
	return newf(KindInvalidInput, format, args...)
}
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }
func AlreadyInProgress(format string, args ...any) *Error {
	return newf(KindAlreadyInProgress, format, args...)
}
func NotReady(format string, args ...any) *Error  { return newf(KindNotReady, format, args...) }
func Conflict(format string, args ...any) *Error  { return newf(KindConflict, format, args...) }
func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }
func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}
func Timeout(format string, args ...any) *Error { return newf(KindTimeout, format, args...) }

func Internal(format string, args ...any) *Error { return newf(KindInternal, format, args...) }

func CollaboratorFailure(err error) *Error { return Wrap(KindCollaboratorFailure, err) }

// KindOf returns the taxonomy kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != "" {
		return ae.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf returns the HTTP status an error should surface with.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}
