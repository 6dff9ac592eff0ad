package api

import (
	"context"
	"net/http"

	"github.com/sungwon/mailqueue/internal/logger"
)

// ReadinessCheck is a named dependency probed by /readyz.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthzHandler handles GET /healthz.
// Always returns 200 OK with {"status":"ok"}.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler handles GET /readyz.
// Returns 200 when every check passes, 503 with Retry-After naming the
// first failing dependency otherwise.
func ReadyzHandler(checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checks {
			if err := c.Ping(r.Context()); err != nil {
				log := logger.FromContext(r.Context())
				log.Warn().Err(err).Str("check", c.Name).Msg("readiness check failed")
				w.Header().Set("Retry-After", "30")
				respondError(w, http.StatusServiceUnavailable, c.Name+" unavailable")
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
