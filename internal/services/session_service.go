package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scamnemesis/authcore/internal/auth"
	"github.com/scamnemesis/authcore/internal/models"
)

// CredentialRepository defines the credential store used by the auth services
type CredentialRepository interface {
	GetByID(ctx context.Context, id string) (*models.Credential, error)
	GetByEmail(ctx context.Context, email string) (*models.Credential, error)
	Update(ctx context.Context, id string, patch models.CredentialPatch) error
	// ConsumeBackupCode atomically removes hash and returns the remaining
	// count, or models.ErrNotFound when hash was already spent
	ConsumeBackupCode(ctx context.Context, id, hash string) (int, error)
	// ClaimTOTPStep reports false when step was already used
	ClaimTOTPStep(ctx context.Context, id string, step int64) (bool, error)
}

// RefreshTokenRepository defines server-side refresh token storage
type RefreshTokenRepository interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	DeleteByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionUser is the identity echoed back with a session
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is a freshly minted access and refresh token pair
type Session struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int           `json:"expires_in"`
	Scopes       []string      `json:"scopes"`
	User         SessionUser   `json:"user"`
	AccessTTL    time.Duration `json:"-"`
	RefreshTTL   time.Duration `json:"-"`
}

// SessionService issues, rotates and revokes sessions
type SessionService struct {
	creds  CredentialRepository
	tokens RefreshTokenRepository
	tm     *auth.TokenManager
	audit  AuditSink
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(creds CredentialRepository, tokens RefreshTokenRepository, tm *auth.TokenManager, audit AuditSink, logger *slog.Logger) *SessionService {
	return &SessionService{
		creds:  creds,
		tokens: tokens,
		tm:     tm,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// IssueSession mints an access and refresh token for cred and stores the refresh token hash
func (s *SessionService) IssueSession(ctx context.Context, cred *models.Credential) (*Session, error) {
	scopes := models.ScopesForRole(cred.Role)

	accessToken, err := s.tm.IssueAccessToken(cred.UserID, cred.Email, cred.Role, scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, expiresAt, err := s.tm.IssueRefreshToken(cred.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	if err := s.tokens.Create(ctx, cred.UserID, hashRefreshToken(refreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.tm.AccessTokenExpiry() / time.Second),
		Scopes:       scopes,
		User: SessionUser{
			ID:    cred.UserID,
			Email: cred.Email,
			Role:  cred.Role,
		},
		AccessTTL:  s.tm.AccessTokenExpiry(),
		RefreshTTL: s.tm.RefreshTokenExpiry(),
	}, nil
}

// Refresh rotates a refresh token. The stored token is deleted before the new
// pair is minted, so a replayed or concurrently used token fails.
func (s *SessionService) Refresh(ctx context.Context, refreshToken, ip string) (*Session, error) {
	claims, err := s.tm.Verify(refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, models.ErrInvalidToken
	}

	stored, err := s.tokens.DeleteByHash(ctx, hashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("refresh token reuse or unknown token", slog.String("user_id", claims.UserID()))
			return nil, models.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	if stored.UserID != claims.UserID() || stored.IsExpired(s.now()) {
		return nil, models.ErrInvalidToken
	}

	cred, err := s.creds.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !cred.IsActive {
		return nil, models.ErrInvalidToken
	}

	session, err := s.IssueSession(ctx, cred)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, newAuditEntry(models.AuditActionTokenRefreshed, models.AuditEntityAuth,
		cred.UserID, cred.UserID, ip, nil))

	return session, nil
}

// Revoke deletes a single refresh token. Unknown tokens are not an error.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	_, err := s.tokens.DeleteByHash(ctx, hashRefreshToken(refreshToken))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAll deletes every refresh token belonging to userID
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	count, err := s.tokens.DeleteByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	s.logger.Info("revoked all sessions", slog.String("user_id", userID), slog.Int64("count", count))
	return nil
}

// Logout revokes refreshToken and, when the caller is authenticated, every
// other session of that user
func (s *SessionService) Logout(ctx context.Context, refreshToken, userID, ip string) error {
	if err := s.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	if userID == "" {
		return nil
	}

	if err := s.RevokeAll(ctx, userID); err != nil {
		return err
	}

	s.audit.Record(ctx, newAuditEntry(models.AuditActionLogout, models.AuditEntityAuth,
		userID, userID, ip, models.AuditChanges{"method": "password"}))
	return nil
}

// CleanupExpired removes refresh tokens past their expiry
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now())
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
