package roles

import "time"

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is a catalog entry as stored for listing.
type Permission struct {
	ID          int64
	Name        string
	Description string
}
