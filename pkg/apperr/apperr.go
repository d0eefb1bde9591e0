// Package apperr defines the error kinds returned by the circulation core.
//
// Every failure the core reports is an *Error carrying a stable Kind. Callers
// match kinds with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apperr.ErrNoCopiesAvailable) { ... }
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindValidation         Kind = "VALIDATION_ERROR"
	KindPermissionDenied   Kind = "PERMISSION_DENIED"
	KindNoCopiesAvailable  Kind = "NO_COPIES_AVAILABLE"
	KindAlreadyBorrowed    Kind = "ALREADY_BORROWED"
	KindBorrowLimitReached Kind = "BORROW_LIMIT_REACHED"
	KindUserInactive       Kind = "USER_INACTIVE"
	KindAlreadyReturned    Kind = "ALREADY_RETURNED"
	KindInvalidStatus      Kind = "INVALID_STATUS"
	KindConflict           Kind = "CONFLICT"
	KindStoreUnavailable   Kind = "STORE_UNAVAILABLE"
	KindInvariantViolation Kind = "INVARIANT_VIOLATION"
	KindInternal           Kind = "INTERNAL"
)

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrPermissionDenied   = &Error{Kind: KindPermissionDenied}
	ErrNoCopiesAvailable  = &Error{Kind: KindNoCopiesAvailable}
	ErrAlreadyBorrowed    = &Error{Kind: KindAlreadyBorrowed}
	ErrBorrowLimitReached = &Error{Kind: KindBorrowLimitReached}
	ErrUserInactive       = &Error{Kind: KindUserInactive}
	ErrAlreadyReturned    = &Error{Kind: KindAlreadyReturned}
	ErrInvalidStatus      = &Error{Kind: KindInvalidStatus}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrStoreUnavailable   = &Error{Kind: KindStoreUnavailable}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation}
)

// Error is a classified failure. Entity names the record type for NOT_FOUND
// and CONFLICT errors.
type Error struct {
	Kind    Kind
	Entity  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, and additionally the same entity
// when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Entity == "" || t.Entity == e.Entity
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Entity:  entity,
		Message: fmt.Sprintf("%s %q not found", entity, id),
	}
}

func Conflict(entity string, err error) *Error {
	return &Error{
		Kind:    KindConflict,
		Entity:  entity,
		Message: fmt.Sprintf("%s already exists", entity),
		Err:     err,
	}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func Unavailable(err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: "store unavailable", Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether the operation may succeed when repeated later.
func Retryable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}

// HTTPStatus maps a kind to the status code the API responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNoCopiesAvailable, KindAlreadyBorrowed, KindBorrowLimitReached,
		KindAlreadyReturned, KindInvalidStatus, KindConflict:
		return http.StatusConflict
	case KindUserInactive:
		return http.StatusUnprocessableEntity
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show to API clients.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "the server encountered a problem and could not process your request"
	}
	switch e.Kind {
	case KindInvariantViolation, KindInternal:
		return "the server encountered a problem and could not process your request"
	case KindStoreUnavailable:
		return "storage is temporarily unavailable, retry later"
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}
