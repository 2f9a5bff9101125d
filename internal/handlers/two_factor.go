package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/scamnemesis/authcore/internal/auth"
	"github.com/scamnemesis/authcore/internal/models"
	"github.com/scamnemesis/authcore/internal/services"
	pkghttp "github.com/scamnemesis/authcore/pkg/http"
)

// TwoFactorServiceInterface defines 2FA management for the signed-in user
type TwoFactorServiceInterface interface {
	Setup(ctx context.Context, userID, ip string) (*services.TwoFactorSetup, error)
	VerifyAndEnable(ctx context.Context, userID, code, ip string) error
	Disable(ctx context.Context, userID, password, code, ip string) error
	Status(ctx context.Context, userID string) (*services.TwoFactorStatus, error)
	RegenerateBackupCodes(ctx context.Context, userID, password, code, ip string) ([]string, error)
}

// TwoFactorHandler handles /api/v1/auth/2fa endpoints
type TwoFactorHandler struct {
	service  TwoFactorServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(service TwoFactorServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{service: service, ipConfig: ipConfig, logger: logger}
}

// Setup starts enrolment and returns the secret and backup codes once
// @Router /api/v1/auth/2fa/setup [post]
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	setup, err := h.service.Setup(r.Context(), claims.UserID(), pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorSetupResponse{
		TwoFactorSetup: setup,
		Message:        "Scan the QR code with your authenticator app, then verify with a code. The secret and backup codes will not be shown again.",
	})
}

// Verify confirms the provisional secret and enables 2FA
// @Router /api/v1/auth/2fa/verify [post]
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req VerifyTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.VerifyAndEnable(r.Context(), claims.UserID(), req.Code, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Two-factor authentication has been enabled successfully",
	})
}

// Disable turns 2FA off and signs the user out everywhere
// @Router /api/v1/auth/2fa/disable [post]
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req DisableTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Disable(r.Context(), claims.UserID(), req.Password, req.Code, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Two-factor authentication has been disabled. Previous backup codes are void and will not be shown again.",
	})
}

// Status reports whether 2FA is on
// @Router /api/v1/auth/2fa/status [get]
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.service.Status(r.Context(), claims.UserID())
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// RegenerateBackupCodes replaces every backup code
// @Router /api/v1/auth/2fa/backup-codes [post]
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req RegenerateBackupCodesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	codes, err := h.service.RegenerateBackupCodes(r.Context(), claims.UserID(), req.Password, req.Code, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, BackupCodesResponse{
		BackupCodes: codes,
		Message:     "Store these codes somewhere safe. They will not be shown again.",
	})
}

func (h *TwoFactorHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteError(w, http.StatusNotFound, "not_found", "User not found")
	case errors.Is(err, models.ErrTwoFactorAlreadyEnabled):
		pkghttp.WriteError(w, http.StatusBadRequest, "already_enabled", "Two-factor authentication is already enabled")
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteError(w, http.StatusBadRequest, "not_enabled", "Two-factor authentication is not enabled")
	case errors.Is(err, models.ErrTwoFactorNotSetUp):
		pkghttp.WriteError(w, http.StatusBadRequest, "not_setup", "Set up two-factor authentication first")
	case errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_code", "Invalid verification code")
	case errors.Is(err, models.ErrOAuthUser):
		pkghttp.WriteError(w, http.StatusBadRequest, "oauth_user", "This account has no password. Please contact support.")
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Incorrect password")
	default:
		h.logger.Error("two-factor request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred")
	}
}
