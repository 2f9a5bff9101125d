package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scamnemesis/authcore/internal/auth"
	"github.com/scamnemesis/authcore/internal/models"
	"github.com/scamnemesis/authcore/internal/services"
	pkghttp "github.com/scamnemesis/authcore/pkg/http"
)

// LockoutGuard is the admin view of a brute-force guard
type LockoutGuard interface {
	AdminUnlock(ctx context.Context, identifier, adminID, ip string) error
	Stats(ctx context.Context) (services.GuardStats, error)
}

// SecurityEventReader lists audit entries for an entity
type SecurityEventReader interface {
	RecentForEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditLog, error)
}

// AdminHandler handles lockout administration and security event listing.
type AdminHandler struct {
	password     LockoutGuard
	secondFactor LockoutGuard
	events       SecurityEventReader
	ipConfig     *pkghttp.IPConfig
	logger       *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(password, secondFactor LockoutGuard, events SecurityEventReader, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		password:     password,
		secondFactor: secondFactor,
		events:       events,
		ipConfig:     ipConfig,
		logger:       logger,
	}
}

// Unlock handles POST /api/v1/admin/lockouts/unlock. The email lock and,
// when user_id is given, the second factor lock are cleared.
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req UnlockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.password.AdminUnlock(r.Context(), req.Email, claims.UserID(), ip); err != nil {
		h.logger.Error("failed to unlock identifier", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to unlock account")
		return
	}

	if req.UserID != "" {
		if err := h.secondFactor.AdminUnlock(r.Context(), req.UserID, claims.UserID(), ip); err != nil {
			h.logger.Error("failed to unlock second factor", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Failed to unlock account")
			return
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Account unlocked"})
}

// LockoutStats handles GET /api/v1/admin/lockouts/stats
func (h *AdminHandler) LockoutStats(w http.ResponseWriter, r *http.Request) {
	password, err := h.password.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to read lockout stats", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve lockout stats")
		return
	}

	second, err := h.secondFactor.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to read second factor stats", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve lockout stats")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LockoutStatsResponse{Password: password, SecondFactor: second})
}

// SecurityEvents handles GET /api/v1/admin/users/{id}/security-events
// Accepts optional ?limit=N (1-100, default 50) and ?entity=Auth|User (default User).
func (h *AdminHandler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(userID); err != nil {
		pkghttp.WriteValidationError(w, "id must be a UUID")
		return
	}

	entityType := models.AuditEntityUser
	if e := r.URL.Query().Get("entity"); e == models.AuditEntityAuth {
		entityType = models.AuditEntityAuth
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, err := h.events.RecentForEntity(r.Context(), entityType, userID, limit)
	if err != nil {
		h.logger.Error("failed to list security events", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve security events")
		return
	}

	events := make([]SecurityEventDTO, 0, len(entries))
	for _, e := range entries {
		events = append(events, SecurityEventDTO{
			ID:        e.ID,
			Action:    e.Action,
			IPAddress: e.IPAddress,
			Changes:   e.Changes,
			CreatedAt: e.CreatedAt,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
