package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents what a user may do in the newsroom.
type Role string

const (
	// RoleAdmin may do everything, including lifecycle overrides.
	RoleAdmin Role = "admin"
	// RoleEditor may author, review and trigger pipeline work.
	RoleEditor Role = "editor"
	// RoleViewer may only read the playback surface.
	RoleViewer Role = "viewer"
)

// User is a newsroom account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}
