package models

import (
	"testing"
)

func TestScopesForRole(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		contains []string
		excludes []string
	}{
		{name: "super admin wildcard", role: RoleSuperAdmin, contains: []string{ScopeAll}},
		{name: "admin", role: RoleAdmin, contains: []string{ScopeReportsRead, ScopeAdminEdit, ScopeAdminApprove}},
		{name: "moderator", role: RoleModerator, contains: []string{ScopeAdminModerate}, excludes: []string{ScopeAdminEdit}},
		{name: "gold", role: RoleGold, contains: []string{ScopeReportsExport, ScopeSearchFace}, excludes: []string{ScopeAdminRead}},
		{name: "standard", role: RoleStandard, contains: []string{ScopeSearchFace}, excludes: []string{ScopeReportsExport}},
		{name: "basic", role: RoleBasic, contains: []string{ScopeReportsWrite}, excludes: []string{ScopeSearchFace}},
		{name: "unknown role gets base scopes", role: "GUEST", contains: []string{ScopeReportsRead, ScopeSearchRead}, excludes: []string{ScopeReportsWrite}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scopes := ScopesForRole(tt.role)
			for _, s := range tt.contains {
				if !containsScope(scopes, s) {
					t.Errorf("ScopesForRole(%q) missing %q: %v", tt.role, s, scopes)
				}
			}
			for _, s := range tt.excludes {
				if containsScope(scopes, s) {
					t.Errorf("ScopesForRole(%q) unexpectedly has %q", tt.role, s)
				}
			}
		})
	}
}

func TestScopesForRole_ReturnsFreshSlice(t *testing.T) {
	a := ScopesForRole(RoleStandard)
	a[0] = "mutated"

	b := ScopesForRole(RoleStandard)
	if b[0] != ScopeReportsRead {
		t.Errorf("base scopes were mutated through a returned slice: %v", b)
	}
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		name     string
		scopes   []string
		required string
		expected bool
	}{
		{name: "exact match", scopes: []string{ScopeReportsRead}, required: ScopeReportsRead, expected: true},
		{name: "wildcard", scopes: []string{ScopeAll}, required: ScopeAdminEdit, expected: true},
		{name: "missing", scopes: []string{ScopeReportsRead}, required: ScopeAdminEdit, expected: false},
		{name: "empty", scopes: nil, required: ScopeReportsRead, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasScope(tt.scopes, tt.required); got != tt.expected {
				t.Errorf("HasScope(%v, %q) = %v, want %v", tt.scopes, tt.required, got, tt.expected)
			}
		})
	}
}

func containsScope(scopes []string, s string) bool {
	for _, v := range scopes {
		if v == s {
			return true
		}
	}
	return false
}
