package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vidfriends/genbridge/internal/identity"
	"github.com/vidfriends/genbridge/internal/logging"
	"github.com/vidfriends/genbridge/internal/refresh"
)

// AgentHandler answers the daemon's refresh requests on behalf of the
// signed-in account.
type AgentHandler struct {
	Provider identity.Provider
}

// Refresh implements POST /api/v1/refresh.
func (h AgentHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Provider == nil {
		logger.Error("identity provider unavailable")
		respondJSON(ctx, w, http.StatusServiceUnavailable, refresh.Response{Reason: refresh.ReasonUnavailable, Error: "identity provider unavailable"})
		return
	}

	req := refresh.Request{Action: "refreshToken", ForceRefresh: true}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCommandBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("invalid refresh payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, refresh.Response{Reason: refresh.ReasonUnavailable, Error: "invalid request body"})
		return
	}
	if req.Action != "refreshToken" {
		respondJSON(ctx, w, http.StatusBadRequest, refresh.Response{Reason: refresh.ReasonUnavailable, Error: "unknown action"})
		return
	}

	token, err := h.Provider.FreshToken(ctx, req.ForceRefresh)
	if errors.Is(err, identity.ErrNotSignedIn) {
		logger.Info("refresh denied, nobody signed in")
		respondJSON(ctx, w, http.StatusOK, refresh.Response{Reason: refresh.ReasonDenied, Error: "not signed in"})
		return
	}
	if err != nil {
		logger.Warn("mint fresh token", "error", err)
		respondJSON(ctx, w, http.StatusOK, refresh.Response{Reason: refresh.ReasonUnavailable, Error: err.Error()})
		return
	}

	subject, err := h.Provider.CurrentSubject(ctx)
	if err != nil {
		logger.Warn("resolve current subject", "error", err)
		respondJSON(ctx, w, http.StatusOK, refresh.Response{Reason: refresh.ReasonUnavailable, Error: err.Error()})
		return
	}
	if subject == nil {
		respondJSON(ctx, w, http.StatusOK, refresh.Response{Reason: refresh.ReasonDenied, Error: "not signed in"})
		return
	}

	logger.Info("fresh token minted", "userId", subject.ID)
	respondJSON(ctx, w, http.StatusOK, refresh.Response{Success: true, Token: token, User: subject})
}
