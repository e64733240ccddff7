package users

// CreateUserRequest carries the payload for user creation.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Name     string `json:"name" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// UpdateUserRequest carries the payload for user updates.
type UpdateUserRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	IsActive *bool  `json:"is_active" validate:"required"`
}

// UserResponse is the JSON view of a user.
type UserResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}
