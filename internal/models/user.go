package models

import (
	"time"
)

// Role names as stored in users.role
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleModerator  = "MODERATOR"
	RoleGold       = "GOLD"
	RoleStandard   = "STANDARD"
	RoleBasic      = "BASIC"
)

// Credential is the authentication view of a user row
type Credential struct {
	UserID         string
	Email          string
	PasswordHash   string // empty for OAuth-only accounts
	Role           string
	IsActive       bool
	EmailVerified  bool
	TOTPSecret     *string // sealed Base32 secret; may exist while TOTPEnabled is false
	TOTPEnabled    bool
	TOTPVerifiedAt *time.Time
	BackupCodes    []string // SHA-256 hex digests
	TOTPLastStep   *int64   // newest time step a code was accepted for
	LastLoginAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPassword reports whether the account can authenticate with a password
func (c *Credential) HasPassword() bool {
	return c.PasswordHash != ""
}

// CredentialPatch describes a partial credential update. Nil fields are left untouched.
type CredentialPatch struct {
	PasswordHash   *string
	TOTPSecret     *string
	ClearTOTP      bool // sets secret, verified_at and the last step to NULL
	TOTPEnabled    *bool
	TOTPVerifiedAt *time.Time
	BackupCodes    *[]string
	LastLoginAt    *time.Time
}

// IsEmpty reports whether the patch changes nothing
func (p CredentialPatch) IsEmpty() bool {
	return p.PasswordHash == nil && p.TOTPSecret == nil && !p.ClearTOTP && p.TOTPEnabled == nil &&
		p.TOTPVerifiedAt == nil && p.BackupCodes == nil && p.LastLoginAt == nil
}

// RefreshToken is a server-side refresh token record
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the record is past its expiry at now
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
