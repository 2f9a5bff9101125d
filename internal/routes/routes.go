package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/scamnemesis/authcore/internal/auth"
	"github.com/scamnemesis/authcore/internal/handlers"
	"github.com/scamnemesis/authcore/internal/middleware"
	"github.com/scamnemesis/authcore/internal/models"
	pkghttp "github.com/scamnemesis/authcore/pkg/http"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes
type Handlers struct {
	Auth      *handlers.AuthHandler
	TwoFactor *handlers.TwoFactorHandler
	Account   *handlers.AccountHandler
	Admin     *handlers.AdminHandler
	Health    *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	limits middleware.AuthRateLimits,
	ipConfig *pkghttp.IPConfig,
) {
	loginLimit := middleware.RateLimitByIP(limits.Login, ipConfig)
	twoFactorLimit := middleware.RateLimitByIP(limits.TwoFactor, ipConfig)
	refreshLimit := middleware.RateLimitByIP(limits.Refresh, ipConfig)

	router.Get("/health", h.Health.Health)

	router.Route("/api/v1/auth", func(r chi.Router) {
		// Public routes - no authentication required
		r.With(loginLimit).Post("/token", h.Auth.Token)
		r.With(twoFactorLimit).Post("/2fa/verify-login", h.Auth.VerifyLogin)
		r.With(refreshLimit).Post("/refresh", h.Auth.Refresh)

		// Logout works without an access token; with one it ends every session
		r.With(auth.OptionalAuth(tokenManager)).Post("/logout", h.Auth.Logout)

		// Protected routes - authentication required
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware(tokenManager))

			r.Post("/2fa/setup", h.TwoFactor.Setup)
			r.With(twoFactorLimit).Post("/2fa/verify", h.TwoFactor.Verify)
			r.Post("/2fa/disable", h.TwoFactor.Disable)
			r.Get("/2fa/status", h.TwoFactor.Status)
			r.Post("/2fa/backup-codes", h.TwoFactor.RegenerateBackupCodes)

			r.Get("/me", h.Account.Me)
			// shares the password guessing budget with /token
			r.With(loginLimit).Post("/me/password", h.Account.ChangePassword)
		})
	})

	router.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(models.ScopeAdminEdit))
			r.Post("/lockouts/unlock", h.Admin.Unlock)
			r.Get("/lockouts/stats", h.Admin.LockoutStats)
		})

		r.With(auth.RequireScope(models.ScopeAdminRead)).Get("/users/{id}/security-events", h.Admin.SecurityEvents)
	})
}
