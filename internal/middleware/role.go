package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agrifin/auth-service/internal/model"
	"github.com/agrifin/auth-service/internal/token"
)

// Authorize is the RBAC gate: a pure function of the verified token
// payload and the required-role set for the target route. Any role
// not explicitly listed is denied; an empty requirement denies
// everything. It holds no state and is safe to evaluate per request.
func Authorize(p token.Payload, requiredRoles ...model.Role) bool {
	for _, r := range requiredRoles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// RequireRole enforces Authorize as echo middleware. It assumes
// JWTAuth ran earlier in the chain; an absent payload is treated as
// unauthenticated rather than merely unauthorized.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PayloadFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !Authorize(p, roles...) {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}
