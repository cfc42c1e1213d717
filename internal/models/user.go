package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// UserRef is the shape embedded in follower/following lists and post authors.
type UserRef struct {
	ID   string
	Name string
}

type User struct {
	ID           string
	Name         string
	Email        string
	Role         UserRole
	PasswordHash []byte
	About        string
	PhotoKey     *string
	PhotoType    *string

	// ResetToken holds the outstanding password-reset credential, if any.
	// It is cleared in the same write that sets the new password hash.
	ResetToken   *string
	ResetTokenAt *time.Time

	Followers []UserRef
	Following []UserRef

	CreatedAt time.Time
	UpdatedAt time.Time
}
