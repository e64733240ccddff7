package auth

import (
	"context"
	"time"
)

// User is the credential view of an account used during login.
type User struct {
	ID           int64
	Email        string
	Name         string
	IsActive     bool
	PasswordHash string
}

// Repository defines the credential and session persistence auth needs.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, userAgent string) error
	DeleteSession(ctx context.Context, id string) error
}
