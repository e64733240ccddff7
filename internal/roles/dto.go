package roles

// CreateRoleRequest carries the payload for role creation.
type CreateRoleRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// UpdateRoleRequest carries the payload for role updates.
type UpdateRoleRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// SetPermissionsRequest replaces a role's permission set.
type SetPermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"dive,gt=0"`
}

// AssignRoleRequest grants a role to a user.
type AssignRoleRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

// RoleResponse is the JSON view of a role.
type RoleResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// PermissionResponse is the JSON view of a permission.
type PermissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
