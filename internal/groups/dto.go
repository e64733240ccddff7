package groups

// CreateGroupRequest carries the payload for group creation.
type CreateGroupRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Kind string `json:"kind" validate:"max=50"`
}

// UpdateGroupRequest carries the payload for group updates.
type UpdateGroupRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Kind string `json:"kind" validate:"max=50"`
}

// AddMemberRequest adds a user to a group.
type AddMemberRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

// AttachRoleRequest attaches a role to a group.
type AttachRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

// GroupResponse is the JSON view of a group.
type GroupResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// MemberResponse is the JSON view of a group member.
type MemberResponse struct {
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	AddedAt string `json:"added_at"`
}
