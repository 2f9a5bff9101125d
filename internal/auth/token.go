package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/scamnemesis/authcore/internal/models"
)

const (
	TokenIssuer   = "scamnemesis"
	TokenAudience = "scamnemesis-api"

	DefaultAccessTokenExpiry  = 1 * time.Hour
	DefaultRefreshTokenExpiry = 7 * 24 * time.Hour
	DefaultPendingTokenExpiry = 5 * time.Minute
)

// TokenConfig holds signing secret and lifetimes
type TokenConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	PendingTokenExpiry time.Duration
}

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret             []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	pendingTokenExpiry time.Duration
	now                func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(config TokenConfig) *TokenManager {
	tm := &TokenManager{
		secret:             []byte(config.Secret),
		accessTokenExpiry:  config.AccessTokenExpiry,
		refreshTokenExpiry: config.RefreshTokenExpiry,
		pendingTokenExpiry: config.PendingTokenExpiry,
		now:                time.Now,
	}
	if tm.accessTokenExpiry <= 0 {
		tm.accessTokenExpiry = DefaultAccessTokenExpiry
	}
	if tm.refreshTokenExpiry <= 0 {
		tm.refreshTokenExpiry = DefaultRefreshTokenExpiry
	}
	if tm.pendingTokenExpiry <= 0 {
		tm.pendingTokenExpiry = DefaultPendingTokenExpiry
	}
	return tm
}

// SetClock replaces the time source (tests)
func (tm *TokenManager) SetClock(now func() time.Time) {
	tm.now = now
}

// AccessTokenExpiry returns the configured access token lifetime
func (tm *TokenManager) AccessTokenExpiry() time.Duration { return tm.accessTokenExpiry }

// RefreshTokenExpiry returns the configured refresh token lifetime
func (tm *TokenManager) RefreshTokenExpiry() time.Duration { return tm.refreshTokenExpiry }

// PendingTokenExpiry returns the configured pending second factor token lifetime
func (tm *TokenManager) PendingTokenExpiry() time.Duration { return tm.pendingTokenExpiry }

// IssueAccessToken creates a short-lived access token carrying identity and scopes
func (tm *TokenManager) IssueAccessToken(userID, email, role string, scopes []string) (string, error) {
	claims := tm.newClaims(models.TokenTypeAccess, userID, tm.accessTokenExpiry)
	claims.Email = email
	claims.Role = role
	claims.Scopes = scopes

	return tm.sign(claims)
}

// IssueRefreshToken creates a long-lived refresh token. The caller persists it.
func (tm *TokenManager) IssueRefreshToken(userID string) (string, time.Time, error) {
	claims := tm.newClaims(models.TokenTypeRefresh, userID, tm.refreshTokenExpiry)

	token, err := tm.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}

// IssuePendingSecondFactorToken creates a token that only resumes a login awaiting 2FA
func (tm *TokenManager) IssuePendingSecondFactorToken(userID string) (string, error) {
	claims := tm.newClaims(models.TokenTypePendingSecond, userID, tm.pendingTokenExpiry)
	// Pending tokens are not API credentials
	claims.Audience = nil

	return tm.sign(claims)
}

// Verify checks signature, expiry, issuer and, when expectedType is set, token type.
// Every failure is reported as models.ErrInvalidToken.
func (tm *TokenManager) Verify(tokenString, expectedType string) (*models.TokenClaims, error) {
	if tokenString == "" {
		return nil, models.ErrInvalidToken
	}

	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil, models.ErrInvalidToken
	}

	if claims.Subject == "" || claims.Type == "" {
		return nil, models.ErrInvalidToken
	}
	if expectedType != "" && claims.Type != expectedType {
		return nil, models.ErrInvalidToken
	}
	if claims.Type == models.TokenTypeAccess && !hasAudience(claims.Audience, TokenAudience) {
		return nil, models.ErrInvalidToken
	}

	return claims, nil
}

func (tm *TokenManager) newClaims(tokenType, userID string, ttl time.Duration) *models.TokenClaims {
	now := tm.now()
	return &models.TokenClaims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}

func (tm *TokenManager) sign(claims *models.TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.Type, err)
	}

	return tokenString, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
