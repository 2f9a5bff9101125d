package handlers

import (
	"time"

	"github.com/scamnemesis/authcore/internal/services"
)

// Login DTOs

// TokenRequest is the password grant
type TokenRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// SecondFactorRequiredResponse is returned when the password was correct but 2FA is enabled
type SecondFactorRequiredResponse struct {
	Requires2FA bool   `json:"requires_2fa"`
	TempToken   string `json:"temp_token"`
	ExpiresIn   int    `json:"expires_in"`
	Message     string `json:"message"`
}

// VerifyLoginRequest completes a login waiting on a second factor
type VerifyLoginRequest struct {
	TempToken    string `json:"temp_token" validate:"required"`
	Code         string `json:"code" validate:"required,min=6,max=20"` // TOTP (6 to 8 digits) or backup code (XXXX-XXXX)
	IsBackupCode bool   `json:"is_backup_code"`
}

// SessionResponse is a granted session. BackupCodesRemaining is only set
// when a backup code was used.
type SessionResponse struct {
	*services.Session
	BackupCodesRemaining *int   `json:"backup_codes_remaining,omitempty"`
	Warning              string `json:"warning,omitempty"`
}

// RefreshRequest carries the refresh token when the cookie is not used
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Two-factor DTOs

// TOTP codes are 6 to 8 digits depending on TOTP_DIGITS. The engine checks
// the exact length.

// VerifyTwoFactorRequest confirms a provisional secret
type VerifyTwoFactorRequest struct {
	Code string `json:"code" validate:"required,numeric,min=6,max=8"`
}

// DisableTwoFactorRequest turns 2FA off
type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required,max=128"`
	Code     string `json:"code" validate:"omitempty,min=6,max=20"`
}

// RegenerateBackupCodesRequest replaces every backup code
type RegenerateBackupCodesRequest struct {
	Password string `json:"password" validate:"required,max=128"`
	Code     string `json:"code" validate:"required,numeric,min=6,max=8"`
}

// TwoFactorSetupResponse is shown exactly once
type TwoFactorSetupResponse struct {
	*services.TwoFactorSetup
	Message string `json:"message"`
}

// BackupCodesResponse returns freshly generated codes
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
	Message     string   `json:"message"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Account DTOs

// MeResponse describes the signed-in caller
type MeResponse struct {
	UserID    string                    `json:"user_id"`
	Email     string                    `json:"email"`
	Role      string                    `json:"role"`
	Scopes    []string                  `json:"scopes"`
	ExpiresAt time.Time                 `json:"expires_at"`
	TwoFactor *services.TwoFactorStatus `json:"two_factor"`
}

// ChangePasswordRequest replaces the password. bcrypt reads at most 72 bytes.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// Admin DTOs

// UnlockRequest clears a lockout
type UnlockRequest struct {
	Email  string `json:"email" validate:"required,email,max=254"`
	UserID string `json:"user_id" validate:"omitempty,uuid"`
}

// LockoutStatsResponse summarizes both guards
type LockoutStatsResponse struct {
	Password     services.GuardStats `json:"password"`
	SecondFactor services.GuardStats `json:"second_factor"`
}

// SecurityEventDTO is one audit entry as shown to administrators
type SecurityEventDTO struct {
	ID        string                 `json:"id"`
	Action    string                 `json:"action"`
	IPAddress *string                `json:"ip_address,omitempty"`
	Changes   map[string]interface{} `json:"changes"`
	CreatedAt time.Time              `json:"created_at"`
}
