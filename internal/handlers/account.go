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

// AccountServiceInterface defines credential changes for the signed-in user
type AccountServiceInterface interface {
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ip string) error
}

// TwoFactorStatusReader reports a user's 2FA state
type TwoFactorStatusReader interface {
	Status(ctx context.Context, userID string) (*services.TwoFactorStatus, error)
}

// AccountHandler handles /api/v1/auth/me endpoints
type AccountHandler struct {
	accounts  AccountServiceInterface
	twoFactor TwoFactorStatusReader
	ipConfig  *pkghttp.IPConfig
	logger    *slog.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accounts AccountServiceInterface, twoFactor TwoFactorStatusReader, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, twoFactor: twoFactor, ipConfig: ipConfig, logger: logger}
}

// Me returns the caller's token identity and 2FA state
// @Router /api/v1/auth/me [get]
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.twoFactor.Status(r.Context(), claims.UserID())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := MeResponse{
		UserID:    claims.UserID(),
		Email:     claims.Email,
		Role:      claims.Role,
		Scopes:    claims.Scopes,
		TwoFactor: status,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	if resp.Scopes == nil {
		resp.Scopes = []string{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ChangePassword replaces the password and signs the user out everywhere
// @Router /api/v1/auth/me/password [post]
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.accounts.ChangePassword(r.Context(), claims.UserID(), req.CurrentPassword, req.NewPassword,
		pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Password changed. All sessions have been signed out; please log in again.",
	})
}

func (h *AccountHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteError(w, http.StatusNotFound, "not_found", "User not found")
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Incorrect password")
	case errors.Is(err, models.ErrOAuthUser):
		pkghttp.WriteError(w, http.StatusBadRequest, "oauth_user", "This account has no password. Please contact support.")
	case errors.Is(err, models.ErrPasswordUnchanged):
		pkghttp.WriteValidationError(w, "new_password: must differ from the current password")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteValidationError(w, "new_password: is not an acceptable password")
	default:
		h.logger.Error("account request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred")
	}
}
