package domain

import "time"

type Role string

const (
	RoleGuest      Role = "guest"
	RoleRegistered Role = "registered"
	RoleAdmin      Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleGuest, RoleRegistered, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// Permission is the effective access level of a sender, derived from the
// user store. Unlike Role it includes the blacklist override and the
// implicit guest level of unknown identities.
type Permission int

const (
	PermissionBlacklisted Permission = iota
	PermissionGuest
	PermissionRegistered
	PermissionAdmin
)

func (p Permission) String() string {
	switch p {
	case PermissionBlacklisted:
		return "blacklisted"
	case PermissionGuest:
		return "guest"
	case PermissionRegistered:
		return "registered"
	case PermissionAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// AtLeast reports whether the permission meets the given minimum level.
// Blacklisted never meets any minimum, including guest.
func (p Permission) AtLeast(min Permission) bool {
	if p == PermissionBlacklisted {
		return false
	}
	return p >= min
}

type User struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	Blacklisted bool      `json:"blacklisted"`
	CreatedAt   time.Time `json:"created_at"`
}

// EffectivePermission computes the user's permission with the blacklist
// flag overriding the stored role.
func (u *User) EffectivePermission() Permission {
	if u.Blacklisted {
		return PermissionBlacklisted
	}
	switch u.Role {
	case RoleAdmin:
		return PermissionAdmin
	case RoleRegistered:
		return PermissionRegistered
	default:
		return PermissionGuest
	}
}
