package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/scamnemesis/authcore/internal/models"
	pkghttp "github.com/scamnemesis/authcore/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// AuthMiddleware validates access tokens from the Authorization header or the
// access_token cookie and injects the claims into the request context
func AuthMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractAccessToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "Missing or malformed authorization")
				return
			}

			claims, err := tm.Verify(tokenString, models.TokenTypeAccess)
			if err != nil {
				pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth injects claims when a valid access token is present and
// otherwise passes the request through untouched
func OptionalAuth(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString, ok := extractAccessToken(r); ok {
				if claims, err := tm.Verify(tokenString, models.TokenTypeAccess); err == nil {
					r = r.WithContext(WithClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireScope rejects requests whose access token lacks the scope
func RequireScope(requiredScope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "Unauthorized")
				return
			}

			if !models.HasScope(claims.Scopes, requiredScope) {
				pkghttp.WriteForbidden(w, "insufficient scope")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithClaims returns a copy of ctx carrying claims
func WithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

func extractAccessToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	if token, err := GetAccessTokenCookie(r); err == nil && token != "" {
		return token, true
	}

	return "", false
}
