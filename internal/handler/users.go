package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/agrifin/auth-service/internal/apierror"
	"github.com/agrifin/auth-service/internal/model"
	"github.com/agrifin/auth-service/internal/repository"
	"github.com/agrifin/auth-service/internal/token"
)

// UserHandler exposes the administrative user operations: role
// changes and deactivation, plus read access for support staff.
// Route-level RBAC is enforced in the router; handlers assume a
// verified payload already passed RequireRole.
type UserHandler struct {
	Users  *repository.UserRepo
	Tokens *token.Service
}

func NewUserHandler(users *repository.UserRepo, tokens *token.Service) *UserHandler {
	return &UserHandler{Users: users, Tokens: tokens}
}

type updateRoleReq struct {
	Role string `json:"role"`
}

type userResp struct {
	ID              uint64     `json:"id"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	FirstName       string     `json:"firstName,omitempty"`
	LastName        string     `json:"lastName,omitempty"`
	IsActive        bool       `json:"isActive"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func pathUserID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apierror.Validation("invalid_id", "invalid user id")
	}
	return id, nil
}

// Get returns a user's public record (admin and support).
func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathUserID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return apierror.Internal(err)
	}
	return c.JSON(http.StatusOK, userResp{
		ID:              u.ID,
		Email:           u.Email,
		Role:            string(u.Role),
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		IsActive:        u.IsActive,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	})
}

// UpdateRole changes a user's role (admin only). Outstanding access
// tokens keep the old role until they expire; the next rotation
// embeds the new one, since rotation re-reads the user row.
func (h *UserHandler) UpdateRole(c echo.Context) error {
	id, err := pathUserID(c)
	if err != nil {
		return err
	}
	var req updateRoleReq
	if err := c.Bind(&req); err != nil {
		return apierror.Validation("invalid_body", "invalid request body")
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		return apierror.Validation("invalid_role", "role must be one of farmer, advisor, admin, support")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if _, err := h.Users.GetByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return apierror.Internal(err)
	}
	if err := h.Users.UpdateRole(ctx, id, role); err != nil {
		return apierror.Internal(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Deactivate soft-disables an account and kills its sessions (admin
// only). The row survives; only the flag flips.
func (h *UserHandler) Deactivate(c echo.Context) error {
	id, err := pathUserID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.Deactivate(ctx, id); err != nil {
		return apierror.Internal(err)
	}
	if err := h.Tokens.InvalidateAllForUser(ctx, id); err != nil {
		return apierror.Internal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
