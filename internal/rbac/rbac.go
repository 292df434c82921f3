package rbac

import (
	"github.com/company-marketplace/backend/internal/models"
	"github.com/google/uuid"
)

// Permission constants
const (
	PermSubmitChange   = "submit_change"
	PermViewChanges    = "view_changes"
	PermModerateChange = "moderate_change"
	PermApplyChange    = "apply_change"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	models.RoleAdmin: {
		PermSubmitChange, PermViewChanges, PermModerateChange, PermApplyChange,
	},
	models.RoleCompanyUser: {
		PermSubmitChange, PermViewChanges,
		// Company users CANNOT: PermModerateChange, PermApplyChange
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// CanActOnCompany reports whether a principal may submit or view changes of
// company. Admins may act on any company; everyone else only on their own.
// An access request is the exception: it is how a user without a company
// asks to join one.
func CanActOnCompany(role string, own *uuid.UUID, company uuid.UUID, changeType models.ChangeType) bool {
	if role == models.RoleAdmin {
		return true
	}
	if changeType == models.ChangeTypeAccessRequest {
		return true
	}
	return own != nil && *own == company
}
