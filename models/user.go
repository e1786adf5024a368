package models

import "github.com/google/uuid"

type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleOrganizer UserRole = "organizer"
	RolePlayer    UserRole = "player"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleOrganizer, RolePlayer:
		return true
	}
	return false
}

// AuthContext is the calling identity resolved by the transport layer.
type AuthContext struct {
	UserID uuid.UUID
	Role   UserRole
}

// CanManage reports whether the caller may run tournament-administration operations.
func (a AuthContext) CanManage() bool {
	return a.Role == RoleAdmin || a.Role == RoleOrganizer
}

func (a AuthContext) IsAnonymous() bool {
	return a.UserID == uuid.Nil
}
