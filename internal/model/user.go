package model

import "time"

// Roles stored in users.role and carried in the access token's role claim.
const (
	RoleAdmin     = "ADMIN"
	RoleTreasurer = "TREASURER"
	RoleBoard     = "BOARD"
)

// WriterRoles may modify members, fees, finances, equipment and events.
// BOARD accounts are read-only.
var WriterRoles = []string{RoleAdmin, RoleTreasurer}

// AllRoles lists every role accepted on authenticated routes.
var AllRoles = []string{RoleAdmin, RoleTreasurer, RoleBoard}

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	for _, v := range AllRoles {
		if v == r {
			return true
		}
	}
	return false
}

// User represents an application account as stored in the `users` table.
// An account may be linked to a Member so that the member can cancel their
// own event registrations.
//
// Fields:
//
//	ID           - primary key identifier of the user.
//	Email        - unique, lower-cased login.
//	PasswordHash - bcrypt hashed password.
//	Role         - ADMIN, TREASURER or BOARD.
//	MemberID     - linked member, if any.
//	LastLogin    - timestamp of the last successful login.
type User struct {
	ID           uint64     `json:"id"`                   // users.id
	Email        string     `json:"email"`                // users.email
	PasswordHash string     `json:"-"`                    // users.password_hash
	FirstName    string     `json:"first_name"`           // users.first_name
	LastName     string     `json:"last_name"`            // users.last_name
	Role         string     `json:"role"`                 // users.role
	IsActive     bool       `json:"is_active"`            // users.is_active
	MemberID     *uint64    `json:"member_id,omitempty"`  // users.member_id (nullable)
	LastLogin    *time.Time `json:"last_login,omitempty"` // users.last_login (nullable)
	CreatedAt    time.Time  `json:"created_at"`           // users.created_at
	UpdatedAt    time.Time  `json:"updated_at"`           // users.updated_at
}

// CanWrite reports whether the user's role allows modifications.
func (u User) CanWrite() bool {
	return u.Role == RoleAdmin || u.Role == RoleTreasurer
}

// RefreshToken models an entry in the `refresh_tokens` table. The plain
// token is never stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
