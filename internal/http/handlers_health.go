package httpx

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck checks one dependency; a nil error means healthy.
type HealthCheck func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

// healthHandler answers liveness checks, and readiness when checks are given.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ok"}

		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			results := make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check(ctx); err != nil {
					results[name] = err.Error()
					status = http.StatusServiceUnavailable
					body["status"] = "degraded"
					continue
				}
				results[name] = "ok"
			}
			body["checks"] = results
		}

		if r.Method == http.MethodHead {
			w.WriteHeader(status)
			return
		}
		WriteJSON(w, status, body)
	}
}
