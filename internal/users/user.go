package users

import (
	"errors"
	"time"
)

// Role is what a user may do in the system.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("user already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User is a teacher or a student. Teachers log in with Email, students with StudentExternalID.
type User struct {
	ID                int64     `json:"id"`
	FullName          string    `json:"full_name"`
	Role              Role      `json:"role"`
	Email             string    `json:"email,omitempty"`
	StudentExternalID string    `json:"student_external_id,omitempty"`
	PasswordHash      string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// Login returns the identifier the user signs in with.
func (u User) Login() string {
	if u.Role == RoleTeacher {
		return u.Email
	}
	return u.StudentExternalID
}
