package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Role is the application-level role assigned to a principal.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

// ParseRole maps a raw claim value onto the closed role set.
// Returns ("", false) for anything outside the set.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleStudent, RoleTeacher, RoleParent, RoleAdmin:
		return Role(raw), true
	default:
		return "", false
	}
}

// HasProfile reports whether the role carries a role-specific profile row.
// Admins only have a users row.
func (r Role) HasProfile() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleParent
}

// User is the central role record for a principal.
// The primary key is the identity provider's principal ID, not a generated UUID:
// the row exists to bind a provider identity to exactly one role.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string    `bun:"id,pk,type:uuid"`
	Email     string    `bun:"email,notnull,unique"`
	Role      Role      `bun:"role,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Student is the role-specific profile row for student principals.
type Student struct {
	bun.BaseModel `bun:"table:students,alias:st"`

	ID        string    `bun:"id,pk,type:uuid"`
	UserID    string    `bun:"user_id,notnull,unique,type:uuid"` // FK to users(id)
	Name      string    `bun:"name,notnull"`
	Level     int       `bun:"level,notnull,default:1"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Teacher is the role-specific profile row for teacher principals.
type Teacher struct {
	bun.BaseModel `bun:"table:teachers,alias:t"`

	ID        string    `bun:"id,pk,type:uuid"`
	UserID    string    `bun:"user_id,notnull,unique,type:uuid"` // FK to users(id)
	Name      string    `bun:"name,notnull"`
	School    string    `bun:"school"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Parent is the role-specific profile row for parent principals.
type Parent struct {
	bun.BaseModel `bun:"table:parents,alias:p"`

	ID        string    `bun:"id,pk,type:uuid"`
	UserID    string    `bun:"user_id,notnull,unique,type:uuid"` // FK to users(id)
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ParentStudent links a parent profile to a student profile.
// The (parent_id, student_id) pair is unique; re-linking is a no-op.
type ParentStudent struct {
	bun.BaseModel `bun:"table:parent_students,alias:ps"`

	ID        string    `bun:"id,pk,type:uuid"`
	ParentID  string    `bun:"parent_id,notnull,type:uuid"`  // FK to parents(id)
	StudentID string    `bun:"student_id,notnull,type:uuid"` // FK to students(id)
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Session caches a provider login locally so the snapshot reader can avoid a
// provider round trip on every request. Never authoritative for role data.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID         string    `bun:"id,pk,type:uuid"`
	UserID     string    `bun:"user_id,notnull,type:uuid"` // principal ID from the provider
	TokenHash  string    `bun:"token_hash,notnull,unique"` // SHA256 hash of the session cookie value
	IDToken    string    `bun:"id_token,type:text"`        // provider ID token, parsed for cached claims
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt time.Time `bun:"last_used_at,notnull,default:current_timestamp"`
	Revoked    bool      `bun:"revoked,notnull,default:false"`
}
