package session

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable class of a failed operation.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindBadRequest     Kind = "bad_request"
	KindForbidden      Kind = "forbidden"
	KindConflict       Kind = "conflict"
	KindInfrastructure Kind = "infrastructure"
	KindUnexpected     Kind = "unexpected"
)

// Error is returned by every Service operation. Message is safe to show to
// the caller; Err carries the cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind-only sentinels for errors.Is.
var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrBadRequest     = &Error{Kind: KindBadRequest}
	ErrForbidden      = &Error{Kind: KindForbidden}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrInfrastructure = &Error{Kind: KindInfrastructure}
	ErrUnexpected     = &Error{Kind: KindUnexpected}
)

func notFound(msg string) *Error   { return &Error{Kind: KindNotFound, Message: msg} }
func badRequest(msg string) *Error { return &Error{Kind: KindBadRequest, Message: msg} }
func forbidden(msg string) *Error  { return &Error{Kind: KindForbidden, Message: msg} }
func conflict(msg string) *Error   { return &Error{Kind: KindConflict, Message: msg} }

func infrastructure(op string, err error) *Error {
	return &Error{
		Kind:    KindInfrastructure,
		Message: "service temporarily unavailable, retry later",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

func unexpected(op string, err error) *Error {
	return &Error{
		Kind:    KindUnexpected,
		Message: "something went wrong",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

// KindOf classifies err. It returns "" for nil and KindUnexpected for errors
// that did not come from this package.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Retryable reports whether the caller may retry with backoff.
func Retryable(err error) bool {
	return KindOf(err) == KindInfrastructure
}
