package models

import "fmt"

// Role is the authorization role carried by an authenticated caller
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ParseRole converts s into a known role
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Identity is the caller as established by the authentication layer
type Identity struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// IsAdmin reports whether the caller holds the administrator role
func (i Identity) IsAdmin() bool {
	switch i.Role {
	case RoleAdmin:
		return true
	case RoleUser:
		return false
	}
	return false
}

// CanActOn reports whether the caller may act on a resource owned by ownerID
func (i Identity) CanActOn(ownerID int64) bool {
	switch i.Role {
	case RoleAdmin:
		return true
	case RoleUser:
		return i.UserID == ownerID
	}
	return false
}
