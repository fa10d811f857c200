package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/agrifin/auth-service/internal/apierror"
	"github.com/agrifin/auth-service/internal/ratelimit"
)

// RateLimit throttles a route with a fixed-window counter. Every
// request consumes budget (unlike the login flow, which only counts
// failures and checks the limiter inside the handler, where the
// account identity is known). When the backing store is down,
// p.FailOpen decides between letting traffic through (low-risk
// reads) and rejecting (security-critical scopes).
func RateLimit(l *ratelimit.Limiter, scope string, p ratelimit.Policy, strategy ratelimit.KeyStrategy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			account := ""
			if payload, ok := PayloadFrom(c); ok {
				account = payload.Email
			}
			key := strategy.Key(c.RealIP(), account)
			ctx := c.Request().Context()

			allowed, retryAfter, err := l.Allow(ctx, scope, key, p)
			if err != nil {
				if p.FailOpen {
					return next(c)
				}
				return apierror.Unavailable("service temporarily unavailable", err)
			}
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(p.Limit))
				return apierror.RateLimited("too many requests, slow down")
			}

			if err := l.Record(ctx, scope, key, p); err != nil && !p.FailOpen {
				return apierror.Unavailable("service temporarily unavailable", err)
			}
			return next(c)
		}
	}
}
