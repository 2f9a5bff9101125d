package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scamnemesis/authcore/internal/auth"
	"github.com/scamnemesis/authcore/internal/models"
	pkgauth "github.com/scamnemesis/authcore/pkg/auth"
)

// TwoFactorSetup is returned once when setup starts. The secret and backup
// codes are never shown again.
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	AuthURL     string   `json:"auth_url"`
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

// TwoFactorStatus reports 2FA state without the secret
type TwoFactorStatus struct {
	Enabled          bool       `json:"enabled"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	BackupCodesCount int        `json:"backup_codes_count"`
}

// TwoFactorConfig holds generation parameters
type TwoFactorConfig struct {
	SecretSize      int
	BackupCodeCount int
}

// TwoFactorService manages TOTP enrolment, removal and backup codes
type TwoFactorService struct {
	creds    CredentialRepository
	sessions *SessionService
	totp     *auth.TOTPEngine
	secrets  *auth.SecretBox
	audit    AuditSink
	notifier SecurityNotifier
	config   TwoFactorConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(
	creds CredentialRepository,
	sessions *SessionService,
	totp *auth.TOTPEngine,
	secrets *auth.SecretBox,
	audit AuditSink,
	notifier SecurityNotifier,
	config TwoFactorConfig,
	logger *slog.Logger,
) *TwoFactorService {
	if config.SecretSize <= 0 {
		config.SecretSize = auth.DefaultSecretSize
	}
	if config.BackupCodeCount <= 0 {
		config.BackupCodeCount = auth.DefaultBackupCodeCount
	}

	return &TwoFactorService{
		creds:    creds,
		sessions: sessions,
		totp:     totp,
		secrets:  secrets,
		audit:    audit,
		notifier: notifier,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Setup generates a provisional secret and a fresh set of backup codes.
// Calling it again before verification replaces both.
func (s *TwoFactorService) Setup(ctx context.Context, userID, ip string) (*TwoFactorSetup, error) {
	cred, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred.TOTPEnabled {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	secret, err := s.totp.GenerateSecret(s.config.SecretSize)
	if err != nil {
		return nil, err
	}

	codes, err := auth.GenerateBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	stored, err := s.secrets.Seal(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to seal totp secret: %w", err)
	}

	uri := s.totp.ProvisioningURI(cred.Email, secret)
	qr, err := s.totp.QRCodeDataURL(uri)
	if err != nil {
		return nil, err
	}

	disabled := false
	hashes := auth.HashBackupCodes(codes)
	if err := s.creds.Update(ctx, userID, models.CredentialPatch{
		TOTPSecret:  &stored,
		TOTPEnabled: &disabled,
		BackupCodes: &hashes,
	}); err != nil {
		return nil, fmt.Errorf("failed to store provisional secret: %w", err)
	}

	s.audit.Record(ctx, newAuditEntry(models.AuditActionTOTPSetupStarted, models.AuditEntityUser,
		userID, userID, ip, nil))

	return &TwoFactorSetup{
		Secret:      secret,
		AuthURL:     uri,
		QRCode:      qr,
		BackupCodes: codes,
	}, nil
}

// VerifyAndEnable confirms the provisional secret with a current code
func (s *TwoFactorService) VerifyAndEnable(ctx context.Context, userID, code, ip string) error {
	cred, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if cred.TOTPEnabled {
		return models.ErrTwoFactorAlreadyEnabled
	}
	if cred.TOTPSecret == nil {
		return models.ErrTwoFactorNotSetUp
	}

	ok, err := s.verifyTOTP(ctx, cred, code)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrInvalidCode
	}

	enabled := true
	now := s.now()
	if err := s.creds.Update(ctx, userID, models.CredentialPatch{
		TOTPEnabled:    &enabled,
		TOTPVerifiedAt: &now,
	}); err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", err)
	}

	s.logger.Info("two-factor enabled", slog.String("user_id", userID))
	s.audit.Record(ctx, newAuditEntry(models.AuditActionTOTPEnabled, models.AuditEntityUser,
		userID, userID, ip, models.AuditChanges{"totpEnabled": true}))
	s.notifier.NotifySecurityChange(ctx, cred.Email, NotifyTwoFactorEnabled, ip)

	return nil
}

// Disable removes 2FA after re-checking the password. code is optional and,
// when given, may be a TOTP code or a backup code. Every session is revoked.
func (s *TwoFactorService) Disable(ctx context.Context, userID, password, code, ip string) error {
	cred, err := s.reauthenticate(ctx, userID, password)
	if err != nil {
		return err
	}

	if code != "" {
		ok, err := s.verifyAnyCode(ctx, cred, code)
		if err != nil {
			return err
		}
		if !ok {
			return models.ErrInvalidCode
		}
	}

	disabled := false
	empty := []string{}
	if err := s.creds.Update(ctx, userID, models.CredentialPatch{
		ClearTOTP:   true,
		TOTPEnabled: &disabled,
		BackupCodes: &empty,
	}); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}

	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		s.logger.Error("failed to revoke sessions after disabling two-factor",
			slog.String("user_id", userID), slog.Any("error", err))
	}

	s.logger.Info("two-factor disabled", slog.String("user_id", userID))
	s.audit.Record(ctx, newAuditEntry(models.AuditActionTOTPDisabled, models.AuditEntityUser,
		userID, userID, ip, models.AuditChanges{"totpEnabled": false}))
	s.notifier.NotifySecurityChange(ctx, cred.Email, NotifyTwoFactorDisabled, ip)

	return nil
}

// Status returns the user's 2FA state
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	cred, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &TwoFactorStatus{Enabled: cred.TOTPEnabled}
	if cred.TOTPEnabled {
		status.VerifiedAt = cred.TOTPVerifiedAt
		status.BackupCodesCount = len(cred.BackupCodes)
	}
	return status, nil
}

// RegenerateBackupCodes replaces every backup code. A current TOTP code is required.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, password, code, ip string) ([]string, error) {
	cred, err := s.reauthenticate(ctx, userID, password)
	if err != nil {
		return nil, err
	}

	ok, err := s.verifyTOTP(ctx, cred, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrInvalidCode
	}

	codes, err := auth.GenerateBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	hashes := auth.HashBackupCodes(codes)
	if err := s.creds.Update(ctx, userID, models.CredentialPatch{BackupCodes: &hashes}); err != nil {
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}

	s.audit.Record(ctx, newAuditEntry(models.AuditActionBackupCodesRegenerated, models.AuditEntityUser,
		userID, userID, ip, models.AuditChanges{"count": len(codes)}))
	s.notifier.NotifySecurityChange(ctx, cred.Email, NotifyBackupCodesRegenerated, ip)

	return codes, nil
}

// reauthenticate loads an enabled credential and checks its password
func (s *TwoFactorService) reauthenticate(ctx context.Context, userID, password string) (*models.Credential, error) {
	cred, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cred.TOTPEnabled {
		return nil, models.ErrTwoFactorNotEnabled
	}
	if !cred.HasPassword() {
		return nil, models.ErrOAuthUser
	}

	if err := pkgauth.ComparePassword(cred.PasswordHash, password); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	return cred, nil
}

func (s *TwoFactorService) verifyTOTP(ctx context.Context, cred *models.Credential, code string) (bool, error) {
	if cred.TOTPSecret == nil {
		return false, nil
	}

	secret, err := s.secrets.Open(*cred.TOTPSecret)
	if err != nil {
		return false, fmt.Errorf("failed to open totp secret: %w", err)
	}
	return claimTOTP(ctx, s.creds, s.totp, cred.UserID, code, secret)
}

// verifyAnyCode accepts a TOTP code or an unused backup code. A backup code
// is not consumed here because the caller clears every code anyway.
func (s *TwoFactorService) verifyAnyCode(ctx context.Context, cred *models.Credential, code string) (bool, error) {
	ok, err := s.verifyTOTP(ctx, cred, code)
	if err != nil || ok {
		return ok, err
	}
	return auth.VerifyBackupCode(code, cred.BackupCodes) >= 0, nil
}

// claimTOTP checks code against secret and records its time step. A code whose
// step is not newer than the last accepted one is a replay and fails.
func claimTOTP(ctx context.Context, creds CredentialRepository, engine *auth.TOTPEngine, userID, code, secret string) (bool, error) {
	step, ok := engine.MatchStep(code, secret)
	if !ok {
		return false, nil
	}

	claimed, err := creds.ClaimTOTPStep(ctx, userID, step)
	if err != nil {
		return false, fmt.Errorf("failed to record totp step: %w", err)
	}
	return claimed, nil
}
