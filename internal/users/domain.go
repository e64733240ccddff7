package users

import "time"

// User is an administered account; once authenticated it acts as the
// principal of the authorization gate.
type User struct {
	ID           int64
	Email        string
	Name         string
	IsActive     bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
