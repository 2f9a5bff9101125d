package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scamnemesis/authcore/internal/auth"
	"github.com/scamnemesis/authcore/internal/models"
	pkgauth "github.com/scamnemesis/authcore/pkg/auth"
	pkglogger "github.com/scamnemesis/authcore/pkg/logger"
)

// FailureReason is the machine-readable cause of a failed login step
type FailureReason string

const (
	FailureInvalidCredentials FailureReason = "invalid_credentials"
	FailureAccountLocked      FailureReason = "account_locked"
	FailureEmailNotVerified   FailureReason = "email_not_verified"
	FailureInvalidToken       FailureReason = "invalid_token"
	FailureInvalidCode        FailureReason = "invalid_code"
)

// LoginResult is one of SessionGranted, SecondFactorRequired or Failed
type LoginResult interface {
	isLoginResult()
}

// SessionGranted carries the session minted for a completed login
type SessionGranted struct {
	Session *Session
	// BackupCodesRemaining is set when the login consumed a backup code
	BackupCodesRemaining *int
}

// SecondFactorRequired means the password was correct and a TOTP or backup code must follow
type SecondFactorRequired struct {
	PendingToken string
	ExpiresIn    time.Duration
}

// Failed describes a rejected login step
type Failed struct {
	Reason            FailureReason
	RetryAfter        time.Duration
	LockedUntil       *time.Time
	RemainingAttempts *int
}

func (SessionGranted) isLoginResult()       {}
func (SecondFactorRequired) isLoginResult() {}
func (Failed) isLoginResult()               {}

// LoginInput is a password grant request
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// SecondFactorInput resumes a login that is waiting on a second factor
type SecondFactorInput struct {
	PendingToken string
	Code         string
	IsBackupCode bool
	IPAddress    string
}

// LoginServiceConfig wires the login state machine
type LoginServiceConfig struct {
	Credentials  CredentialRepository
	Sessions     *SessionService
	Tokens       *auth.TokenManager
	TOTP         *auth.TOTPEngine
	Secrets      *auth.SecretBox
	Guard        *BruteForceGuard // keyed by email
	SecondFactor *BruteForceGuard // keyed by user id
	Delayer      auth.Delayer
	Audit        AuditSink
	Logger       *slog.Logger
}

// LoginService runs password login and the second factor step
type LoginService struct {
	creds        CredentialRepository
	sessions     *SessionService
	tm           *auth.TokenManager
	totp         *auth.TOTPEngine
	secrets      *auth.SecretBox
	guard        *BruteForceGuard
	secondFactor *BruteForceGuard
	delayer      auth.Delayer
	audit        AuditSink
	logger       *slog.Logger
	now          func() time.Time
}

// NewLoginService creates a new LoginService
func NewLoginService(cfg LoginServiceConfig) *LoginService {
	return &LoginService{
		creds:        cfg.Credentials,
		sessions:     cfg.Sessions,
		tm:           cfg.Tokens,
		totp:         cfg.TOTP,
		secrets:      cfg.Secrets,
		guard:        cfg.Guard,
		secondFactor: cfg.SecondFactor,
		delayer:      cfg.Delayer,
		audit:        cfg.Audit,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// Login authenticates email and password. Errors are returned only for
// infrastructure failures; every rejection is a Failed result.
func (s *LoginService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	lock, err := s.guard.CheckLocked(ctx, email)
	if err != nil {
		// Fail open: attempt store outages must not block every login
		s.logger.Error("failed to check lock status", slog.Any("error", err))
	}
	if lock.Locked {
		s.logger.Info("login blocked: identifier locked", slog.String("email", pkglogger.SanitizedEmail(email)))
		return Failed{Reason: FailureAccountLocked, RetryAfter: lock.RetryAfter, LockedUntil: lock.LockedUntil}, nil
	}

	cred, err := s.creds.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	if cred == nil || !cred.IsActive || !cred.HasPassword() {
		_ = pkgauth.CompareDummy(in.Password)
		return s.passwordFailure(ctx, email, cred, in.IPAddress)
	}

	if err := pkgauth.ComparePassword(cred.PasswordHash, in.Password); err != nil {
		return s.passwordFailure(ctx, email, cred, in.IPAddress)
	}

	if err := s.guard.RecordSuccess(ctx, email); err != nil {
		s.logger.Error("failed to clear attempt record", slog.Any("error", err))
	}

	if !cred.EmailVerified {
		s.logger.Info("login blocked: email not verified", slog.String("user_id", cred.UserID))
		return Failed{Reason: FailureEmailNotVerified}, nil
	}

	if cred.TOTPEnabled {
		pending, err := s.tm.IssuePendingSecondFactorToken(cred.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to issue pending token: %w", err)
		}

		s.audit.Record(ctx, newAuditEntry(models.AuditActionLogin2FARequired, models.AuditEntityAuth,
			cred.UserID, cred.UserID, in.IPAddress, nil))

		return SecondFactorRequired{PendingToken: pending, ExpiresIn: s.tm.PendingTokenExpiry()}, nil
	}

	session, err := s.completeLogin(ctx, cred, in.IPAddress, "password")
	if err != nil {
		return nil, err
	}
	return SessionGranted{Session: session}, nil
}

// VerifySecondFactor completes a login with a TOTP or backup code. The pending
// token stays usable after a wrong code until it expires.
func (s *LoginService) VerifySecondFactor(ctx context.Context, in SecondFactorInput) (LoginResult, error) {
	claims, err := s.tm.Verify(in.PendingToken, models.TokenTypePendingSecond)
	if err != nil {
		return Failed{Reason: FailureInvalidToken}, nil
	}
	userID := claims.UserID()

	lock, err := s.secondFactor.CheckLocked(ctx, userID)
	if err != nil {
		s.logger.Error("failed to check second factor lock status", slog.Any("error", err))
	}
	if lock.Locked {
		return Failed{Reason: FailureAccountLocked, RetryAfter: lock.RetryAfter, LockedUntil: lock.LockedUntil}, nil
	}

	cred, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return Failed{Reason: FailureInvalidToken}, nil
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !cred.IsActive || !cred.TOTPEnabled || cred.TOTPSecret == nil {
		return Failed{Reason: FailureInvalidToken}, nil
	}

	var remaining *int
	method := "2fa"

	if in.IsBackupCode {
		index := auth.VerifyBackupCode(in.Code, cred.BackupCodes)
		if index < 0 {
			return s.secondFactorFailure(ctx, userID, in.IPAddress)
		}

		// Two requests holding the same snapshot race here; only one removal
		// of the hash can succeed.
		count, err := s.creds.ConsumeBackupCode(ctx, userID, cred.BackupCodes[index])
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return s.secondFactorFailure(ctx, userID, in.IPAddress)
			}
			return nil, fmt.Errorf("failed to consume backup code: %w", err)
		}

		remaining = &count
		method = "backup_code"

		s.audit.Record(ctx, newAuditEntry(models.AuditActionBackupCodeUsed, models.AuditEntityUser,
			userID, userID, in.IPAddress, models.AuditChanges{"remaining": count}))
	} else {
		secret, err := s.secrets.Open(*cred.TOTPSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to open totp secret: %w", err)
		}
		ok, err := claimTOTP(ctx, s.creds, s.totp, userID, in.Code, secret)
		if err != nil {
			return nil, err
		}
		if !ok {
			return s.secondFactorFailure(ctx, userID, in.IPAddress)
		}
	}

	if err := s.secondFactor.RecordSuccess(ctx, userID); err != nil {
		s.logger.Error("failed to clear second factor attempts", slog.Any("error", err))
	}

	session, err := s.completeLogin(ctx, cred, in.IPAddress, method)
	if err != nil {
		return nil, err
	}
	return SessionGranted{Session: session, BackupCodesRemaining: remaining}, nil
}

func (s *LoginService) completeLogin(ctx context.Context, cred *models.Credential, ip, method string) (*Session, error) {
	session, err := s.sessions.IssueSession(ctx, cred)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.creds.Update(ctx, cred.UserID, models.CredentialPatch{LastLoginAt: &now}); err != nil {
		s.logger.Warn("failed to update last login", slog.String("user_id", cred.UserID), slog.Any("error", err))
	}

	s.audit.Record(ctx, newAuditEntry(models.AuditActionLoginSuccess, models.AuditEntityAuth,
		cred.UserID, cred.UserID, ip, models.AuditChanges{"method": method}))

	s.logger.Info("login succeeded", slog.String("user_id", cred.UserID), slog.String("method", method))
	return session, nil
}

func (s *LoginService) passwordFailure(ctx context.Context, email string, cred *models.Credential, ip string) (LoginResult, error) {
	result, err := s.guard.RecordFailure(ctx, email, ip)
	if err != nil {
		s.logger.Error("failed to record failed attempt", slog.Any("error", err))
	}

	if err := s.delayer.Wait(ctx, result.Delay); err != nil {
		return nil, err
	}

	userID := ""
	if cred != nil {
		userID = cred.UserID
	}
	s.audit.Record(ctx, newAuditEntry(models.AuditActionLoginFailed, models.AuditEntityAuth,
		email, userID, ip, models.AuditChanges{
			"reason":         string(FailureInvalidCredentials),
			"failedAttempts": result.FailedAttempts,
		}))

	remaining := result.RemainingAttempts
	failed := Failed{Reason: FailureInvalidCredentials, RemainingAttempts: &remaining}
	if result.Locked {
		failed.LockedUntil = result.LockedUntil
	}
	return failed, nil
}

func (s *LoginService) secondFactorFailure(ctx context.Context, userID, ip string) (LoginResult, error) {
	result, err := s.secondFactor.RecordFailure(ctx, userID, ip)
	if err != nil {
		s.logger.Error("failed to record second factor failure", slog.Any("error", err))
	}

	s.audit.Record(ctx, newAuditEntry(models.AuditActionLogin2FAFailed, models.AuditEntityAuth,
		userID, userID, ip, models.AuditChanges{"failedAttempts": result.FailedAttempts}))

	remaining := result.RemainingAttempts
	failed := Failed{Reason: FailureInvalidCode, RemainingAttempts: &remaining}
	if result.Locked {
		failed.LockedUntil = result.LockedUntil
	}
	return failed, nil
}
