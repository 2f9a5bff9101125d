package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/scamnemesis/authcore/pkg/http"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck is one named dependency check
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler reports the state of every dependency
type HealthHandler struct {
	checks []HealthCheck
}

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := map[string]string{"status": "healthy"}
	status := http.StatusOK
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			resp[c.Name] = "down"
			resp["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp[c.Name] = "up"
	}

	pkghttp.WriteJSON(w, status, resp)
}
