package shared

// Core platform permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermGroupsView = "groups.view"
	PermGroupsEdit = "groups.edit"

	PermPermissionsView = "permissions.view"

	PermAuditView = "audit.view"
)

// CorePermissions maps every core permission to its description. The
// permission catalog and the boot-time table sync are built from this table.
func CorePermissions() map[string]string {
	return map[string]string{
		PermUsersView:       "List and inspect user accounts",
		PermUsersEdit:       "Create, update and deactivate user accounts",
		PermRolesView:       "List roles and their permission assignments",
		PermRolesEdit:       "Create, update and delete roles; manage role grants",
		PermGroupsView:      "List groups and their membership",
		PermGroupsEdit:      "Create, update and delete groups; manage membership",
		PermPermissionsView: "List the permission catalog",
		PermAuditView:       "Read audit log entries",
	}
}
