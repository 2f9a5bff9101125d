package models

// Scope constants define all valid scopes in the system
const (
	ScopeReportsRead   = "reports:read"
	ScopeReportsWrite  = "reports:write"
	ScopeReportsExport = "reports:export"
	ScopeSearchRead    = "search:read"
	ScopeSearchFace    = "search:face"

	ScopeAdminRead     = "admin:read"
	ScopeAdminApprove  = "admin:approve"
	ScopeAdminEdit     = "admin:edit"
	ScopeAdminModerate = "admin:moderate"

	// Wildcard scope - grants all permissions (super admin only)
	ScopeAll = "*"
)

var baseScopes = []string{ScopeReportsRead, ScopeSearchRead}

// ScopesForRole returns the default access token scopes for a role
func ScopesForRole(role string) []string {
	switch role {
	case RoleSuperAdmin:
		return []string{ScopeAll}
	case RoleAdmin:
		return withBase(ScopeReportsWrite, ScopeSearchFace, ScopeReportsExport,
			ScopeAdminRead, ScopeAdminApprove, ScopeAdminEdit, ScopeAdminModerate)
	case RoleModerator:
		return withBase(ScopeReportsWrite, ScopeAdminRead, ScopeAdminModerate)
	case RoleGold:
		return withBase(ScopeReportsWrite, ScopeSearchFace, ScopeReportsExport)
	case RoleStandard:
		return withBase(ScopeReportsWrite, ScopeSearchFace)
	case RoleBasic:
		// BASIC users can submit fraud reports (they are typically victims)
		return withBase(ScopeReportsWrite)
	default:
		return withBase()
	}
}

func withBase(extra ...string) []string {
	scopes := make([]string, 0, len(baseScopes)+len(extra))
	scopes = append(scopes, baseScopes...)
	return append(scopes, extra...)
}

// HasScope checks if a scopes array contains a required scope
// Handles wildcard "*" for super-admin access
func HasScope(scopes []string, required string) bool {
	for _, scope := range scopes {
		if scope == ScopeAll || scope == required {
			return true
		}
	}
	return false
}
