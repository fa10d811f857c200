package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/agrifin/auth-service/internal/model"
)

func setupUserRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepo(db), mock
}

func userRows(u model.User) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "role", "first_name", "last_name",
		"is_active", "email_verified_at", "created_at", "updated_at",
	})
	var verified interface{}
	if u.EmailVerifiedAt != nil {
		verified = *u.EmailVerifiedAt
	}
	rows.AddRow(u.ID, u.Email, u.PasswordHash, string(u.Role), u.FirstName, u.LastName,
		u.IsActive, verified, u.CreatedAt, u.UpdatedAt)
	return rows
}

func TestUserRepo_Create(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectExec("INSERT INTO users").
		WithArgs("alice@example.com", "hashed", "farmer", "Alice", "Smith").
		WillReturnResult(sqlmock.NewResult(11, 1))

	id, err := repo.Create(context.Background(), NewUser{
		Email:        "  Alice@Example.COM ", // normalized before insert
		PasswordHash: "hashed",
		Role:         model.RoleFarmer,
		FirstName:    "Alice",
		LastName:     "Smith",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(11), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_DefaultsRole(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectExec("INSERT INTO users").
		WithArgs("bob@example.com", "hashed", "farmer", "", "").
		WillReturnResult(sqlmock.NewResult(12, 1))

	_, err := repo.Create(context.Background(), NewUser{
		Email:        "bob@example.com",
		PasswordHash: "hashed",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_DuplicateEmail(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'alice@example.com' for key 'users.email'"))

	_, err := repo.Create(context.Background(), NewUser{
		Email:        "alice@example.com",
		PasswordHash: "hashed",
	})
	require.ErrorIs(t, err, ErrEmailExists)
}

func TestUserRepo_GetByEmail(t *testing.T) {
	repo, mock := setupUserRepo(t)
	now := time.Now().UTC()
	verified := now.Add(-time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email=").
		WithArgs("alice@example.com").
		WillReturnRows(userRows(model.User{
			ID:              11,
			Email:           "alice@example.com",
			PasswordHash:    "hashed",
			Role:            model.RoleAdvisor,
			FirstName:       "Alice",
			IsActive:        true,
			EmailVerifiedAt: &verified,
			CreatedAt:       now,
			UpdatedAt:       now,
		}))

	u, err := repo.GetByEmail(context.Background(), " ALICE@example.com ")
	require.NoError(t, err)
	require.Equal(t, uint64(11), u.ID)
	require.Equal(t, model.RoleAdvisor, u.Role)
	require.NotNil(t, u.EmailVerifiedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByEmail_NotFound(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email=").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserRepo_GetByID_NullVerified(t *testing.T) {
	repo, mock := setupUserRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(uint64(11)).
		WillReturnRows(userRows(model.User{
			ID: 11, Email: "a@b.c", Role: model.RoleFarmer,
			IsActive: true, CreatedAt: now, UpdatedAt: now,
		}))

	u, err := repo.GetByID(context.Background(), 11)
	require.NoError(t, err)
	require.Nil(t, u.EmailVerifiedAt)
}

func TestUserRepo_UpdateRoleAndDeactivate(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectExec("UPDATE users SET role=").
		WithArgs("advisor", uint64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateRole(context.Background(), 11, model.RoleAdvisor))

	mock.ExpectExec("UPDATE users SET is_active=0").
		WithArgs(uint64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Deactivate(context.Background(), 11))

	require.NoError(t, mock.ExpectationsWereMet())
}
