package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Audit actions
const (
	AuditActionLoginSuccess           = "LOGIN_SUCCESS"
	AuditActionLoginFailed            = "LOGIN_FAILED"
	AuditActionLogin2FARequired       = "LOGIN_2FA_REQUIRED"
	AuditActionLogin2FAFailed         = "LOGIN_2FA_FAILED"
	AuditActionAccountLocked          = "ACCOUNT_LOCKED"
	AuditActionAccountUnlocked        = "ACCOUNT_UNLOCKED"
	AuditActionTOTPSetupStarted       = "TOTP_SETUP_STARTED"
	AuditActionTOTPEnabled            = "TOTP_ENABLED"
	AuditActionTOTPDisabled           = "TOTP_DISABLED"
	AuditActionBackupCodesRegenerated = "BACKUP_CODES_REGENERATED"
	AuditActionBackupCodeUsed         = "BACKUP_CODE_USED"
	AuditActionTokenRefreshed         = "TOKEN_REFRESHED"
	AuditActionLogout                 = "LOGOUT"
	AuditActionPasswordChanged        = "PASSWORD_CHANGED"
)

// Entity types
const (
	AuditEntityAuth = "Auth"
	AuditEntityUser = "User"
)

// AuditLog is a single audit trail entry
type AuditLog struct {
	ID         string       `json:"id"`
	Action     string       `json:"action"`
	EntityType string       `json:"entity_type"`
	EntityID   string       `json:"entity_id"`
	UserID     *string      `json:"user_id,omitempty"`
	Changes    AuditChanges `json:"changes"`
	IPAddress  *string      `json:"ip_address,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// AuditChanges holds additional context for audit events
type AuditChanges map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (ac *AuditChanges) Scan(value interface{}) error {
	if value == nil {
		*ac = make(AuditChanges)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*ac = AuditChanges(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (ac AuditChanges) Value() (driver.Value, error) {
	if ac == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(ac))
}
