package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/agrifin/auth-service/internal/model"
)

// UserRepo is the credential store. All writes are single-row atomic
// statements; email uniqueness is enforced by the UNIQUE index on
// users.email, so concurrent duplicate registrations are arbitrated
// by MySQL, not by the caller.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

// NewUser carries the fields of a registration. PasswordHash must
// already be hashed; this layer never sees plaintext.
type NewUser struct {
	Email        string
	PasswordHash string
	Role         model.Role
	FirstName    string
	LastName     string
}

const userColumns = "id,email,password_hash,role,first_name,last_name,is_active,email_verified_at,created_at,updated_at"

// Create inserts a user and returns its ID. Duplicate emails map to
// ErrEmailExists (MySQL error 1062 on the unique index).
func (r *UserRepo) Create(ctx context.Context, nu NewUser) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(nu.Email))
	role := nu.Role
	if role == "" {
		role = model.DefaultRole
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, first_name, last_name) VALUES (?,?,?,?,?)",
		email, nu.PasswordHash, string(role), nu.FirstName, nu.LastName)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpdateRole changes a user's role to one of the closed enumeration.
func (r *UserRepo) UpdateRole(ctx context.Context, id uint64, role model.Role) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET role=?, updated_at=NOW() WHERE id=?", string(role), id)
	return err
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, passwordHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=NOW() WHERE id=?", passwordHash, id)
	return err
}

// Deactivate soft-disables an account. Rows are never deleted.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=0, updated_at=NOW() WHERE id=?", id)
	return err
}

// MarkEmailVerified stamps email_verified_at once.
func (r *UserRepo) MarkEmailVerified(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET email_verified_at=NOW(), updated_at=NOW() WHERE id=? AND email_verified_at IS NULL", id)
	return err
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var (
		u        model.User
		role     string
		verified sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.FirstName, &u.LastName,
		&u.IsActive, &verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if verified.Valid {
		t := verified.Time
		u.EmailVerifiedAt = &t
	}
	return u, nil
}
