package model

import "time"

// Role is the closed set of platform roles carried in access-token
// claims and consumed by downstream services for authorization.
type Role string

const (
	RoleFarmer  Role = "farmer"
	RoleAdvisor Role = "advisor"
	RoleAdmin   Role = "admin"
	RoleSupport Role = "support"
)

// DefaultRole is assigned when a registration does not carry an
// explicit role. It is the lowest-privilege value.
const DefaultRole = RoleFarmer

// ParseRole normalizes a raw string into a Role. The boolean is
// false for anything outside the closed enumeration.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleFarmer, RoleAdvisor, RoleAdmin, RoleSupport:
		return Role(s), true
	}
	return "", false
}

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column. The json tags
// are omitted because these structs are used internally by the
// repository layer; handlers define separate response types with
// appropriate JSON tags, and PasswordHash must never be serialized.
//
// Users are soft-deactivated via IsActive; rows are never deleted.
type User struct {
	ID              uint64     // users.id
	Email           string     // users.email (stored lower-cased, unique)
	PasswordHash    string     // users.password_hash (bcrypt)
	Role            Role       // users.role
	FirstName       string     // users.first_name
	LastName        string     // users.last_name
	IsActive        bool       // users.is_active
	EmailVerifiedAt *time.Time // users.email_verified_at (nullable)
	CreatedAt       time.Time  // users.created_at
	UpdatedAt       time.Time  // users.updated_at
}

// Session models a refresh record held in the session store. Each
// session belongs to exactly one user and carries only the SHA-256
// hash of the refresh token; the plain token is never stored.
// Rotation replaces TokenHash and ExpiresAt in place, so at most one
// hash per rotation chain is ever valid.
type Session struct {
	ID        string    // session id (uuid)
	UserID    uint64    // owning user
	TokenHash string    // SHA-256 hex digest of the raw refresh token
	ExpiresAt time.Time // expiry of the current refresh token
	CreatedAt time.Time // when the chain was started
}
