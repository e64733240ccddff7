package app

import (
	"github.com/aegis-iam/aegis/internal/authz"
	"github.com/aegis-iam/aegis/internal/shared"
)

// NewCatalog builds the permission catalog the service understands.
func NewCatalog() *authz.Catalog {
	return authz.NewCatalog(shared.CorePermissions())
}

// RegisterOperations fills the endpoint metadata registry: one entry per
// gated operation, naming the permissions the gate will demand. The table is
// consulted once per route mount and validated against the catalog before the
// server starts; an unknown permission here refuses startup.
func RegisterOperations(reg *authz.Registry) {
	reg.Register("users.list", shared.PermUsersView)
	reg.Register("users.manage", shared.PermUsersEdit)

	reg.Register("roles.list", shared.PermRolesView)
	reg.Register("roles.manage", shared.PermRolesEdit)

	reg.Register("groups.list", shared.PermGroupsView)
	reg.Register("groups.manage", shared.PermGroupsEdit)

	reg.Register("permissions.list", shared.PermPermissionsView)

	reg.Register("audit.list", shared.PermAuditView)
}
