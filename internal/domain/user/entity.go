package user

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient   Role = "patient"
	RoleCaretaker Role = "caretaker"
	RoleDoctor    Role = "doctor"
	RoleAdmin     Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleCaretaker, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// User represents a user entity in the domain
type User struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Phone          *string
	PasswordHashed string
	Role           Role
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RefreshToken represents a refresh token entity
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActiveAt checks the token is neither revoked nor expired at now.
func (rt *RefreshToken) IsActiveAt(now time.Time) bool {
	return !rt.Revoked && now.Before(rt.ExpiresAt)
}
