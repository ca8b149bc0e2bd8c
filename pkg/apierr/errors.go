// Package apierr defines the small closed set of error kinds surfaced at
// the external HTTP/socket boundary (spec §7): NotFound, Forbidden,
// BadRequest, Conflict, Timeout, Internal. Each is a sentinel-wrapped error
// so callers can test with errors.Is/errors.As; pkg/api maps Kind to HTTP
// status once, at the edge.
package apierr

import (
	"errors"
	"fmt"
)

// Kind enumerates the semantic error categories (spec §7). These are not
// Go error types themselves — *Error wraps one.
type Kind string

const (
	KindNotFound   Kind = "NotFound"
	KindForbidden  Kind = "Forbidden"
	KindBadRequest Kind = "BadRequest"
	KindConflict   Kind = "Conflict"
	KindTimeout    Kind = "Timeout"
	KindInternal   Kind = "Internal"
)

// Error is a Kind-tagged error. Message is the redacted, user-visible
// text; Err (optional) is the underlying cause, logged but never returned
// to the caller directly for KindInternal.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, apierr.NotFound("")) match purely on Kind,
// ignoring Message/Err.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// NotFound builds a KindNotFound error.
func NotFound(message string) *Error { return &Error{Kind: KindNotFound, Message: message} }

// Forbidden builds a KindForbidden error.
func Forbidden(message string) *Error { return &Error{Kind: KindForbidden, Message: message} }

// BadRequest builds a KindBadRequest error.
func BadRequest(message string) *Error { return &Error{Kind: KindBadRequest, Message: message} }

// Conflict builds a KindConflict error.
func Conflict(message string) *Error { return &Error{Kind: KindConflict, Message: message} }

// Timeout builds a KindTimeout error.
func Timeout(message string) *Error { return &Error{Kind: KindTimeout, Message: message} }

// Internal builds a KindInternal error wrapping cause; cause is logged by
// the caller but never included in Message sent to the client.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
