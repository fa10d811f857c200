// Package router wires HTTP routes, the middleware chain and the
// error contract onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/agrifin/auth-service/internal/apierror"
	"github.com/agrifin/auth-service/internal/config"
	"github.com/agrifin/auth-service/internal/handler"
	"github.com/agrifin/auth-service/internal/middleware"
	"github.com/agrifin/auth-service/internal/model"
	"github.com/agrifin/auth-service/internal/ratelimit"
)

// Register sets up the full surface of the auth service. Every
// response carries the security headers and a correlation id; every
// error funnels through the apierror contract.
func Register(e *echo.Echo, a *handler.AuthHandler, u *handler.UserHandler, limiter *ratelimit.Limiter, rl config.RateLimitConfig) {
	e.HTTPErrorHandler = apierror.HTTPErrorHandler
	e.HideBanner = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
	}))

	e.GET("/health", handler.Health)

	// Credential exchange endpoints. Login, refresh and reset apply
	// their own fail-closed limiters inside the handler, where the
	// account identity is known after binding the body.
	g := e.Group("/api/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh-token", a.Refresh)
	g.POST("/logout", a.Logout)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)

	// Authenticated self-service. Low-risk read, fail-open limiter.
	me := e.Group("/api/v1/auth")
	me.Use(middleware.JWTAuth(a.Tokens))
	me.Use(middleware.RateLimit(limiter, "read", rl.Read, rl.KeyStrategy))
	me.GET("/me", a.Me)

	// Administrative user management. The RBAC gate runs after token
	// verification; deny is the default for unlisted roles.
	users := e.Group("/api/v1/users")
	users.Use(middleware.JWTAuth(a.Tokens))
	users.GET("/:id", u.Get, middleware.RequireRole(model.RoleAdmin, model.RoleSupport))
	users.PATCH("/:id/role", u.UpdateRole, middleware.RequireRole(model.RoleAdmin))
	users.DELETE("/:id", u.Deactivate, middleware.RequireRole(model.RoleAdmin))
}
