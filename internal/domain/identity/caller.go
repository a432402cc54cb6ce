package identity

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFaculty Role = "faculty"
)

// ParseRole normalizes a role claim. Unknown roles come back as "".
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleFaculty:
		return RoleFaculty
	default:
		return ""
	}
}

// Caller is the (caller_id, role) pair resolved by the identity provider.
type Caller struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// Valid reports whether the caller may use the paper pipeline at all.
func (c Caller) Valid() bool {
	return c.ID != uuid.Nil && (c.Role == RoleAdmin || c.Role == RoleFaculty)
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }
