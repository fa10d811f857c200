package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agrifin/auth-service/internal/apierror"
	"github.com/agrifin/auth-service/internal/config"
	"github.com/agrifin/auth-service/internal/middleware"
	"github.com/agrifin/auth-service/internal/model"
	"github.com/agrifin/auth-service/internal/queue"
	"github.com/agrifin/auth-service/internal/ratelimit"
	"github.com/agrifin/auth-service/internal/repository"
	queue_publisher "github.com/agrifin/auth-service/internal/service"
	"github.com/agrifin/auth-service/internal/token"
	"github.com/agrifin/auth-service/internal/utils"
)

// Rate-limit scopes owned by this handler.
const (
	scopeLogin   = "login"
	scopeRefresh = "refresh"
	scopeReset   = "reset"
)

// dummyBcryptHash is compared against when login hits an unknown
// email, so the unknown-account path costs the same bcrypt work as a
// wrong password and timing cannot distinguish the two.
const dummyBcryptHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg     config.Config
	RL      config.RateLimitConfig
	Users   *repository.UserRepo
	Resets  *repository.ResetRepo
	Tokens  *token.Service
	Limiter *ratelimit.Limiter
}

func NewAuthHandler(cfg config.Config, rl config.RateLimitConfig, users *repository.UserRepo, resets *repository.ResetRepo, tokens *token.Service, limiter *ratelimit.Limiter) *AuthHandler {
	return &AuthHandler{Cfg: cfg, RL: rl, Users: users, Resets: resets, Tokens: tokens, Limiter: limiter}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type logoutReq struct {
	SessionID    string `json:"sessionId"`
	RefreshToken string `json:"refreshToken"`
}
type forgotPasswordReq struct {
	Email string `json:"email"`
}
type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type userPart struct {
	ID        uint64 `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}
type authResp struct {
	User             userPart  `json:"user"`
	SessionID        string    `json:"sessionId"`
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

func pairResponse(u model.User, p token.Pair) authResp {
	return authResp{
		User: userPart{
			ID:        u.ID,
			Email:     u.Email,
			Role:      string(u.Role),
			FirstName: u.FirstName,
			LastName:  u.LastName,
		},
		SessionID:        p.SessionID,
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// Register creates a user with the lowest-privilege role and returns
// a token pair immediately. The UNIQUE index on users.email is the
// arbiter for concurrent duplicate registrations.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return apierror.Validation("invalid_body", "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return apierror.Validation("missing_fields", "email and password are required")
	}
	if len(req.Password) < 8 {
		return apierror.Validation("weak_password", "password must be at least 8 characters")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return apierror.Internal(err)
	}

	uid, err := h.Users.Create(ctx, repository.NewUser{
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.DefaultRole,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return apierror.Duplicate("email_exists", "email already registered")
		}
		return apierror.Internal(err)
	}

	u := model.User{
		ID:        uid,
		Email:     req.Email,
		Role:      model.DefaultRole,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		IsActive:  true,
	}
	pair, err := h.Tokens.IssuePair(ctx, u)
	if err != nil {
		return apierror.Internal(err)
	}

	// Best-effort event; the publisher logs its own failures.
	_ = queue_publisher.PublishUserRegistered(ctx, queue.UserRegisteredEvent{
		UserID:       uid,
		Email:        u.Email,
		Role:         string(u.Role),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
	})

	return c.JSON(http.StatusCreated, pairResponse(u, pair))
}

// Login verifies credentials and returns a new pair. The limiter is
// consulted before credentials are evaluated (so the over-limit
// answer is 429 regardless of password correctness) and only failed
// attempts consume budget. Unknown email and wrong password are
// indistinguishable in status, message and bcrypt cost.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return apierror.Validation("invalid_body", "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return apierror.Validation("missing_fields", "email and password are required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	limitKey := h.RL.KeyStrategy.Key(c.RealIP(), req.Email)
	if h.RL.Enabled {
		allowed, retryAfter, err := h.Limiter.Allow(ctx, scopeLogin, limitKey, h.RL.Login)
		if err != nil {
			// Login fails closed: an unreachable limiter must not
			// grant unlimited guessing.
			return apierror.Unavailable("service temporarily unavailable", err)
		}
		if !allowed {
			return h.rateLimited(c, retryAfter, h.RL.Login)
		}
	}

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.VerifyPassword(dummyBcryptHash, req.Password)
			return h.failedLogin(ctx, limitKey)
		}
		return apierror.Internal(err)
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return h.failedLogin(ctx, limitKey)
	}

	pair, err := h.Tokens.IssuePair(ctx, u)
	if err != nil {
		return apierror.Internal(err)
	}
	return c.JSON(http.StatusOK, pairResponse(u, pair))
}

func (h *AuthHandler) failedLogin(ctx context.Context, limitKey string) error {
	if h.RL.Enabled {
		_ = h.Limiter.Record(ctx, scopeLogin, limitKey, h.RL.Login)
	}
	return apierror.Auth("invalid_credentials", "invalid email or password")
}

func (h *AuthHandler) rateLimited(c echo.Context, retryAfter time.Duration, p ratelimit.Policy) error {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(p.Limit))
	return apierror.RateLimited("too many attempts, try again later")
}

// Refresh rotates a refresh token for a fresh pair. Replay of a
// superseded token has already destroyed the session by the time the
// store reports it; here it is logged, published as a security event
// and answered like any other bad token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return apierror.Validation("missing_fields", "refreshToken is required")
	}
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if h.RL.Enabled {
		limitKey := ratelimit.KeyByIP.Key(c.RealIP(), "")
		allowed, retryAfter, err := h.Limiter.Allow(ctx, scopeRefresh, limitKey, h.RL.Refresh)
		if err != nil {
			return apierror.Unavailable("service temporarily unavailable", err)
		}
		if !allowed {
			return h.rateLimited(c, retryAfter, h.RL.Refresh)
		}
		_ = h.Limiter.Record(ctx, scopeRefresh, limitKey, h.RL.Refresh)
	}

	pair, err := h.Tokens.Rotate(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrReplayDetected):
			sessionID, _ := token.SplitOpaqueToken(raw)
			_ = queue_publisher.PublishReplayDetected(ctx, queue.ReplayDetectedEvent{
				SessionID:  sessionID,
				RemoteIP:   c.RealIP(),
				DetectedAt: time.Now().UTC().Format(time.RFC3339),
			})
			return apierror.Replay(sessionID)
		case errors.Is(err, repository.ErrSessionNotFound), errors.Is(err, repository.ErrSessionExpired):
			return apierror.Auth("invalid_refresh_token", "invalid or expired refresh token")
		default:
			return apierror.Internal(err)
		}
	}

	u := model.User{} // response user part comes from the verified pair claims
	if p, err := h.Tokens.VerifyAccess(pair.AccessToken); err == nil {
		u = model.User{ID: p.Sub, Email: p.Email, Role: p.Role}
	}
	return c.JSON(http.StatusOK, pairResponse(u, pair))
}

// Logout terminates sessions. Three forms are accepted:
//   - refreshToken in the body: ends that session (token must match)
//   - sessionId in the body plus a bearer token: ends that session
//     after an ownership check
//   - bearer token alone: ends every session of the caller
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)
	sessionID := strings.TrimSpace(req.SessionID)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if refreshToken != "" {
		if err := h.Tokens.RevokeRefresh(ctx, refreshToken); err != nil {
			return apierror.Auth("invalid_refresh_token", "invalid or expired refresh token")
		}
		return c.NoContent(http.StatusNoContent)
	}

	payload, authed := h.bearerPayload(c)

	if sessionID != "" {
		if !authed {
			return apierror.Auth("missing_token", "authentication required to log out by session id")
		}
		sess, err := h.Tokens.FindSession(ctx, sessionID)
		if err != nil || sess.UserID != payload.Sub {
			// Unknown and foreign sessions answer alike.
			return c.NoContent(http.StatusNoContent)
		}
		if err := h.Tokens.Invalidate(ctx, sessionID); err != nil {
			return apierror.Internal(err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	if authed {
		if err := h.Tokens.InvalidateAllForUser(ctx, payload.Sub); err != nil {
			return apierror.Internal(err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	return apierror.Validation("missing_fields", "provide refreshToken, sessionId or a bearer token")
}

// bearerPayload verifies an optional Authorization header without
// requiring the JWTAuth middleware on the route.
func (h *AuthHandler) bearerPayload(c echo.Context) (token.Payload, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return token.Payload{}, false
	}
	p, err := h.Tokens.VerifyAccess(strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return token.Payload{}, false
	}
	return p, true
}

// ForgotPassword issues a single-use reset token scoped to password
// reset only and hands it to the notification service. The response
// is 202 whether or not the account exists, so the endpoint cannot
// be used to enumerate emails.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil {
		return apierror.Validation("invalid_body", "invalid request body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return apierror.Validation("missing_fields", "email is required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if h.RL.Enabled {
		limitKey := h.RL.KeyStrategy.Key(c.RealIP(), email)
		allowed, retryAfter, err := h.Limiter.Allow(ctx, scopeReset, limitKey, h.RL.Reset)
		if err != nil {
			return apierror.Unavailable("service temporarily unavailable", err)
		}
		if !allowed {
			return h.rateLimited(c, retryAfter, h.RL.Reset)
		}
		_ = h.Limiter.Record(ctx, scopeReset, limitKey, h.RL.Reset)
	}

	u, err := h.Users.GetByEmail(ctx, email)
	if err == nil && u.IsActive {
		id := uuid.NewString()
		raw, err := token.NewOpaqueToken(id)
		if err != nil {
			return apierror.Internal(err)
		}
		if err := h.Resets.Create(ctx, id, u.ID, token.HashOpaqueToken(raw), h.Cfg.ResetTTL); err != nil {
			return apierror.Internal(err)
		}
		_ = queue_publisher.PublishPasswordResetRequested(ctx, queue.PasswordResetRequestedEvent{
			UserID:      u.ID,
			Email:       u.Email,
			ResetToken:  raw,
			ExpiresAt:   time.Now().UTC().Add(h.Cfg.ResetTTL).Format(time.RFC3339),
			RequestedAt: time.Now().UTC().Format(time.RFC3339),
		})
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apierror.Internal(err)
	}

	return c.JSON(http.StatusAccepted, echo.Map{
		"message": "if the account exists, reset instructions have been sent",
	})
}

// ResetPassword redeems a reset token exactly once, replaces the
// password hash and kills every session of the user. Redeeming the
// token also proves mailbox ownership, so the email is marked
// verified as a side effect.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return apierror.Validation("invalid_body", "invalid request body")
	}
	raw := strings.TrimSpace(req.Token)
	if raw == "" || req.NewPassword == "" {
		return apierror.Validation("missing_fields", "token and newPassword are required")
	}
	if len(req.NewPassword) < 8 {
		return apierror.Validation("weak_password", "password must be at least 8 characters")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	id, ok := token.SplitOpaqueToken(raw)
	if !ok {
		return apierror.Auth("invalid_reset_token", "invalid or expired reset token")
	}
	uid, err := h.Resets.Consume(ctx, id, token.HashOpaqueToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrResetTokenInvalid) {
			return apierror.Auth("invalid_reset_token", "invalid or expired reset token")
		}
		return apierror.Internal(err)
	}

	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return apierror.Internal(err)
	}
	if err := h.Users.UpdatePassword(ctx, uid, hash); err != nil {
		return apierror.Internal(err)
	}
	_ = h.Users.MarkEmailVerified(ctx, uid)
	if err := h.Tokens.InvalidateAllForUser(ctx, uid); err != nil {
		return apierror.Internal(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// Me echoes the verified token payload. Protected route; used by
// frontends to bootstrap and by other services as a verification
// example.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := middleware.PayloadFrom(c)
	if !ok {
		return apierror.Auth("missing_token", "authentication required")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":    p.Sub,
		"email": p.Email,
		"role":  string(p.Role),
		"iat":   p.IssuedAt,
		"exp":   p.ExpiresAt,
	})
}
