package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim
const (
	TokenTypeAccess        = "access"
	TokenTypeRefresh       = "refresh"
	TokenTypePendingSecond = "2fa_pending"
)

// TokenClaims are the JWT claims shared by access, refresh and pending tokens.
// The subject is always the user id.
type TokenClaims struct {
	Type   string   `json:"type"`
	Email  string   `json:"email,omitempty"`
	Role   string   `json:"role,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim
func (c *TokenClaims) UserID() string {
	return c.Subject
}
