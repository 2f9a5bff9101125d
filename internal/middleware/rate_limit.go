package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	pkghttp "github.com/scamnemesis/authcore/pkg/http"
)

// RateLimitConfig holds one fixed-window limit
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// AuthRateLimits groups the limits applied to the public auth endpoints
type AuthRateLimits struct {
	Login     RateLimitConfig
	TwoFactor RateLimitConfig
	Refresh   RateLimitConfig
}

// DefaultAuthRateLimits returns 10/15m for login, 5/5m for second factor
// verification and 20/15m for refresh
func DefaultAuthRateLimits() AuthRateLimits {
	return AuthRateLimits{
		Login:     RateLimitConfig{Requests: 10, Window: 15 * time.Minute},
		TwoFactor: RateLimitConfig{Requests: 5, Window: 5 * time.Minute},
		Refresh:   RateLimitConfig{Requests: 20, Window: 15 * time.Minute},
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// The IP is resolved with ipConfig so forwarded headers are only honoured
// from trusted proxies.
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.")
		}),
	)
}
