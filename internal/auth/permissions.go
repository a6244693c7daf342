package auth

// Permission represents a named administrative capability in the system.
//
// These cover account and system administration only. Vehicle component
// access is decided by the access resolver from ownership and grants,
// never by role.
type Permission string

// Permission constants.
const (
	PermVehicleUse  Permission = "vehicle:use"
	PermUserManage  Permission = "user:manage"
	PermAuditRead   Permission = "audit:read"
	PermSystemAdmin Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the administrative model.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermVehicleUse,
	},
	RoleAdmin: {
		PermVehicleUse,
		PermUserManage,
		PermAuditRead,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
