package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler responds with service health information. Check, when set,
// must succeed for the service to report ok.
type HealthHandler struct {
	Service string
	Check   func(ctx context.Context) error
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	payload := map[string]string{
		"status":  "ok",
		"service": h.Service,
	}

	if h.Check != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.Check(checkCtx); err != nil {
			payload["status"] = "degraded"
			payload["error"] = err.Error()
			respondJSON(ctx, w, http.StatusServiceUnavailable, payload)
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, payload)
}
