package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scamnemesis/authcore/internal/models"
	pkgauth "github.com/scamnemesis/authcore/pkg/auth"
)

// AccountService handles credential changes made by the signed-in user
type AccountService struct {
	creds    CredentialRepository
	sessions *SessionService
	audit    AuditSink
	notifier SecurityNotifier
	logger   *slog.Logger
	hash     func(password string) (string, error)
}

// NewAccountService creates a new AccountService
func NewAccountService(creds CredentialRepository, sessions *SessionService, audit AuditSink, notifier SecurityNotifier, logger *slog.Logger) *AccountService {
	return &AccountService{
		creds:    creds,
		sessions: sessions,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
		hash:     pkgauth.HashPassword,
	}
}

// ChangePassword replaces the password after re-checking the current one.
// Every refresh token is revoked so other devices must sign in again.
func (s *AccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ip string) error {
	cred, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !cred.HasPassword() {
		return models.ErrOAuthUser
	}

	if err := pkgauth.ComparePassword(cred.PasswordHash, currentPassword); err != nil {
		return models.ErrInvalidCredentials
	}
	if newPassword == currentPassword {
		return models.ErrPasswordUnchanged
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		if errors.Is(err, pkgauth.ErrEmptyPassword) || errors.Is(err, pkgauth.ErrPasswordTooLong) {
			return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
		}
		return err
	}

	if err := s.creds.Update(ctx, userID, models.CredentialPatch{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}

	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		s.logger.Error("failed to revoke sessions after password change",
			slog.String("user_id", userID), slog.Any("error", err))
	}

	s.logger.Info("password changed", slog.String("user_id", userID))
	s.audit.Record(ctx, newAuditEntry(models.AuditActionPasswordChanged, models.AuditEntityUser,
		userID, userID, ip, models.AuditChanges{"sessionsRevoked": true}))
	s.notifier.NotifySecurityChange(ctx, cred.Email, NotifyPasswordChanged, ip)

	return nil
}
