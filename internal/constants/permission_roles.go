package constants

import roles "agrihub-backend/internal/pkg/constants"

// PermissionRoles maps each permission to roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ManageListings:  {roles.Member, roles.Moderator, roles.Admin},
	RequestListings: {roles.Member, roles.Moderator, roles.Admin},
	ViewAuditLog:    {roles.Moderator, roles.Admin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	allowed, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
