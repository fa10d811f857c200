// Package repository implements the durable stores behind the auth
// service: user credentials in MySQL and refresh sessions plus
// password-reset tokens in Redis. This file defines the sentinel
// errors shared across repositories so higher layers can translate
// failure scenarios into the HTTP error taxonomy without inspecting
// driver errors.
package repository

import "errors"

// ErrSessionNotFound is returned when a refresh session does not
// exist: unknown id, already invalidated, or expired out of Redis.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a session record is present but
// past its expiry (Redis TTL expiry is lazy; the timestamp is the
// source of truth).
var ErrSessionExpired = errors.New("session expired")

// ErrReplayDetected is returned when a presented refresh token hash
// does not match the current hash for its session, i.e. a token that
// was already rotated away is being replayed. The whole session is
// invalidated before this error is returned.
var ErrReplayDetected = errors.New("refresh token replay detected")

// ErrResetTokenInvalid is returned when a password-reset token is
// unknown, expired or already consumed.
var ErrResetTokenInvalid = errors.New("reset token invalid")
