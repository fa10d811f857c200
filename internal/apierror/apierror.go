// Package apierror defines the tagged error variants shared by the
// auth service. Handlers and repositories return *Error values (or
// wrap sentinel causes into them); the echo error handler in this
// package dispatches the Kind into an HTTP status and a stable JSON
// body. Internal detail never reaches the client.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the error categories the service can surface.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicateIdentity
	KindAuthentication
	KindRateLimited
	KindReplayDetected
	KindUnavailable
)

// HTTPStatus maps a Kind to the status code returned to clients.
// Replay detection is deliberately indistinguishable from any other
// authentication failure on the wire; it is only logged distinctly.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindDuplicateIdentity:
		return http.StatusConflict
	case KindAuthentication, KindReplayDetected:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error is the tagged variant type. Code is a stable machine-readable
// identifier, Message is safe to show to clients, and Err (optional)
// preserves the underlying cause for server-side logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Validation reports malformed or missing input.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Duplicate reports a uniqueness violation (e.g. email already taken).
func Duplicate(code, message string) *Error {
	return &Error{Kind: KindDuplicateIdentity, Code: code, Message: message}
}

// Auth reports bad credentials or an invalid, expired or revoked token.
// The message must be uniform across "unknown account" and "wrong
// password" so responses cannot be used for account enumeration.
func Auth(code, message string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: message}
}

// RateLimited reports that the caller exhausted its attempt budget.
func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Code: "rate_limited", Message: message}
}

// Replay reports reuse of a superseded refresh token. Clients see a
// plain authentication failure; the Kind drives distinct logging and
// full session invalidation.
func Replay(sessionID string) *Error {
	return &Error{
		Kind:    KindReplayDetected,
		Code:    "invalid_refresh_token",
		Message: "invalid or expired refresh token",
		Err:     fmt.Errorf("refresh token replay on session %s", sessionID),
	}
}

// Unavailable reports a hard dependency outage (database, session
// store) where the request cannot be served safely.
func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Code: "service_unavailable", Message: message, Err: err}
}

// Internal wraps an unexpected error. The client only ever sees the
// generic message plus a correlation id for server-side lookup.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: "internal server error", Err: err}
}
