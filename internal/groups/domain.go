package groups

import "time"

// Group is a named collection of principals that may itself hold roles.
type Group struct {
	ID        int64
	Name      string
	Kind      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member is a user belonging to a group.
type Member struct {
	UserID  int64
	Email   string
	Name    string
	AddedAt time.Time
}
