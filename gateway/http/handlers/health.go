package handlers

import (
	"net/http"

	"github.com/julienstroheker/wsockify/internal/logging"
)

// HealthCheck reports whether the service behind the health endpoint is serving
type HealthCheck func() error

// NewHealthHandler returns a handler answering GET with 200 "OK" while check
// passes and 503 with the reason when it fails. A nil check always passes.
func NewHealthHandler(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if check != nil {
			if err := check(); err != nil {
				logging.FromContext(r.Context()).Warn("Health check failed", logging.Error(err))
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		// Ignore write error for health check as status is already set
		_, _ = w.Write([]byte("OK"))
	}
}
