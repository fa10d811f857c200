// Package middleware provides reusable HTTP middleware: bearer-token
// verification, the RBAC gate and request throttling.
package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/agrifin/auth-service/internal/apierror"
	"github.com/agrifin/auth-service/internal/token"
)

// payloadKey is where the verified token payload lands in the echo
// context for handlers and downstream middleware.
const payloadKey = "auth_payload"

// AccessVerifier validates a raw access token. Implemented by
// *token.Service and *token.Signer.
type AccessVerifier interface {
	VerifyAccess(raw string) (token.Payload, error)
}

// JWTAuth returns middleware that validates a Bearer access token
// and injects the verified payload into the request context.
// Verification never fails open: missing, malformed, expired and
// badly signed tokens all yield 401.
func JWTAuth(verifier AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return apierror.Auth("missing_token", "missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			p, err := verifier.VerifyAccess(raw)
			if err != nil {
				if errors.Is(err, token.ErrExpiredToken) {
					return apierror.Auth("token_expired", "access token expired")
				}
				return apierror.Auth("invalid_token", "invalid access token")
			}

			c.Set(payloadKey, p)
			return next(c)
		}
	}
}

// PayloadFrom retrieves the verified token payload placed in the
// context by JWTAuth. The boolean is false on unauthenticated
// requests.
func PayloadFrom(c echo.Context) (token.Payload, bool) {
	p, ok := c.Get(payloadKey).(token.Payload)
	return p, ok
}
