package api

import (
	"net/http"

	"github.com/triagehub/triagehub/internal/api/respond"
	"github.com/triagehub/triagehub/internal/health"
)

// HealthHandler serves the service liveness endpoint from the cached health
// flag; it never probes dependencies inline.
type HealthHandler struct {
	checker *health.ServiceHealthChecker
}

func NewHealthHandler(checker *health.ServiceHealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// CheckHealth handles GET /v0/health.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil || !h.checker.IsHealthy() {
		respond.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
