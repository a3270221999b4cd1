package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vidfriends/genbridge/internal/logging"
	"github.com/vidfriends/genbridge/internal/outcome"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status)
	}
}

// statusForKind maps a failure kind onto the HTTP status of the command response.
func statusForKind(kind outcome.Kind) int {
	switch kind {
	case outcome.KindInvalid:
		return http.StatusBadRequest
	case outcome.KindAuthRequired, outcome.KindAuthExpired:
		return http.StatusUnauthorized
	case outcome.KindTimeout:
		return http.StatusGatewayTimeout
	case outcome.KindNetwork, outcome.KindServerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
