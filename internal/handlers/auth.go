package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/scamnemesis/authcore/internal/auth"
	"github.com/scamnemesis/authcore/internal/models"
	"github.com/scamnemesis/authcore/internal/services"
	pkghttp "github.com/scamnemesis/authcore/pkg/http"
)

// LoginServiceInterface defines the two-step login contract
type LoginServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (services.LoginResult, error)
	VerifySecondFactor(ctx context.Context, in services.SecondFactorInput) (services.LoginResult, error)
}

// SessionServiceInterface defines refresh and logout
type SessionServiceInterface interface {
	Refresh(ctx context.Context, refreshToken, ip string) (*services.Session, error)
	Logout(ctx context.Context, refreshToken, userID, ip string) error
}

// AuthHandler handles login, refresh and logout
type AuthHandler struct {
	login    LoginServiceInterface
	sessions SessionServiceInterface
	cookies  auth.CookieConfig
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(login LoginServiceInterface, sessions SessionServiceInterface, cookies auth.CookieConfig, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		login:    login,
		sessions: sessions,
		cookies:  cookies,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Token handles the password grant
// @Router /api/v1/auth/token [post]
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.login.Login(r.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: pkghttp.UserAgent(r),
	})
	if err != nil {
		h.internalError(w, "login failed", err)
		return
	}

	switch res := result.(type) {
	case services.SessionGranted:
		h.writeSession(w, res)
	case services.SecondFactorRequired:
		pkghttp.WriteJSON(w, http.StatusOK, SecondFactorRequiredResponse{
			Requires2FA: true,
			TempToken:   res.PendingToken,
			ExpiresIn:   int(res.ExpiresIn.Seconds()),
			Message:     "Two-factor authentication required. Please enter your verification code.",
		})
	case services.Failed:
		writeLoginFailure(w, res)
	default:
		h.internalError(w, "login failed", fmt.Errorf("unexpected login result %T", result))
	}
}

// VerifyLogin completes a login with a TOTP or backup code
// @Router /api/v1/auth/2fa/verify-login [post]
func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req VerifyLoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.login.VerifySecondFactor(r.Context(), services.SecondFactorInput{
		PendingToken: req.TempToken,
		Code:         req.Code,
		IsBackupCode: req.IsBackupCode,
		IPAddress:    pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		h.internalError(w, "second factor verification failed", err)
		return
	}

	switch res := result.(type) {
	case services.SessionGranted:
		h.writeSession(w, res)
	case services.Failed:
		writeLoginFailure(w, res)
	default:
		h.internalError(w, "second factor verification failed", fmt.Errorf("unexpected login result %T", result))
	}
}

// Refresh rotates the refresh token from the body or the refresh cookie
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := h.refreshTokenFrom(r)
	if token == "" {
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token", "Refresh token is required")
		return
	}

	session, err := h.sessions.Refresh(r.Context(), token, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		if errors.Is(err, models.ErrInvalidToken) {
			auth.ClearAuthCookies(w, h.cookies)
			pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired refresh token")
			return
		}
		h.internalError(w, "refresh failed", err)
		return
	}

	h.writeSession(w, services.SessionGranted{Session: session})
}

// Logout revokes the presented refresh token. An authenticated caller is
// signed out of every session.
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.refreshTokenFrom(r)

	userID := ""
	if claims := auth.GetUserFromContext(r); claims != nil {
		userID = claims.UserID()
	}

	auth.ClearAuthCookies(w, h.cookies)

	if err := h.sessions.Logout(r.Context(), token, userID, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
		h.internalError(w, "logout failed", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Logged out successfully"})
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, granted services.SessionGranted) {
	s := granted.Session
	auth.SetAuthCookies(w, s.AccessToken, s.AccessTTL, s.RefreshToken, s.RefreshTTL, h.cookies)

	resp := SessionResponse{Session: s, BackupCodesRemaining: granted.BackupCodesRemaining}
	if granted.BackupCodesRemaining != nil && *granted.BackupCodesRemaining <= 2 {
		resp.Warning = fmt.Sprintf("Only %d backup code(s) left. Regenerate your backup codes soon.", *granted.BackupCodesRemaining)
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// refreshTokenFrom prefers the JSON body and falls back to the cookie
func (h *AuthHandler) refreshTokenFrom(r *http.Request) string {
	var req RefreshRequest
	if r.Body != nil && r.ContentLength != 0 {
		_ = json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes)).Decode(&req)
	}
	if req.RefreshToken != "" {
		return req.RefreshToken
	}

	token, err := auth.GetRefreshTokenCookie(r)
	if err != nil {
		return ""
	}
	return token
}

func (h *AuthHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	pkghttp.WriteInternalError(w, "An unexpected error occurred")
}

// writeLoginFailure maps a failed login step onto the error taxonomy
func writeLoginFailure(w http.ResponseWriter, f services.Failed) {
	switch f.Reason {
	case services.FailureAccountLocked:
		var until time.Time
		if f.LockedUntil != nil {
			until = *f.LockedUntil
		}
		pkghttp.WriteAccountLocked(w, f.RetryAfter, until)

	case services.FailureInvalidCredentials:
		pkghttp.WriteErrorResponse(w, http.StatusUnauthorized, attemptsResponse(
			"invalid_credentials", "Invalid email or password", f))

	case services.FailureInvalidCode:
		pkghttp.WriteErrorResponse(w, http.StatusUnauthorized, attemptsResponse(
			"invalid_code", "Invalid verification code", f))

	case services.FailureEmailNotVerified:
		pkghttp.WriteError(w, http.StatusForbidden, "email_not_verified",
			"Please verify your email address before logging in.")

	case services.FailureInvalidToken:
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token",
			"Invalid or expired verification token. Please log in again.")

	default:
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	}
}

func attemptsResponse(code, message string, f services.Failed) pkghttp.ErrorResponse {
	resp := pkghttp.ErrorResponse{
		Error:             code,
		Message:           message,
		RemainingAttempts: f.RemainingAttempts,
	}
	if f.RemainingAttempts != nil && *f.RemainingAttempts > 0 && *f.RemainingAttempts <= 2 {
		resp.Warning = fmt.Sprintf("Warning: %d attempt(s) remaining before lockout.", *f.RemainingAttempts)
	}
	if f.LockedUntil != nil {
		resp.LockedUntil = f.LockedUntil.UTC().Format(time.RFC3339)
	}
	return resp
}
