package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vidfriends/genbridge/internal/dispatch"
	"github.com/vidfriends/genbridge/internal/logging"
	"github.com/vidfriends/genbridge/internal/outcome"
)

const maxCommandBytes = 1 << 20

// CommandDispatcher resolves commands submitted by UI surfaces.
type CommandDispatcher interface {
	Submit(ctx context.Context, cmd dispatch.Command) *dispatch.Pending
}

// CommandHandler exposes the dispatcher over HTTP.
type CommandHandler struct {
	Dispatcher CommandDispatcher
	Limiter    RateLimiter
}

// Handle implements POST /api/v1/commands. The command keeps running when
// the caller disconnects; only the generation deadline bounds it.
func (h CommandHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Dispatcher == nil {
		logger.Error("command dispatcher unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, dispatch.FailureResponse(outcome.New(outcome.KindInternal, "command dispatcher unavailable")))
		return
	}

	var cmd dispatch.Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBytes)).Decode(&cmd); err != nil {
		logger.Warn("invalid command payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, dispatch.FailureResponse(outcome.New(outcome.KindInvalid, "invalid request body")))
		return
	}

	cmd.Action = strings.TrimSpace(cmd.Action)
	if cmd.Action == "" {
		respondJSON(ctx, w, http.StatusBadRequest, dispatch.FailureResponse(outcome.New(outcome.KindInvalid, "action is required")))
		return
	}

	// Auth state pushes always succeed, so they never count against the caller.
	if cmd.Action != dispatch.ActionAuthStateChanged && !allowCommand(h.Limiter, r) {
		logger.Warn("command rate limited", "caller", callerKey(r), "action", cmd.Action)
		respondJSON(ctx, w, http.StatusTooManyRequests, dispatch.FailureResponse(outcome.New(outcome.KindInvalid, "Too many requests, slow down")))
		return
	}

	pending := h.Dispatcher.Submit(context.WithoutCancel(ctx), cmd)
	resp := pending.Wait(ctx)

	status := http.StatusOK
	if !resp.Success {
		status = statusForKind(resp.ErrorKind)
	}
	respondJSON(ctx, w, status, resp)
}
