package handlers

import (
	"context"
	"net/http"

	"github.com/vidfriends/genbridge/internal/dispatch"
	"github.com/vidfriends/genbridge/internal/identity"
	"github.com/vidfriends/genbridge/internal/refresh"
)

// RegisterRoutes wires the daemon's HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Service: "genbridge-daemon", Check: deps.HealthCheck}
	commands := CommandHandler{Dispatcher: deps.Dispatcher, Limiter: deps.Limiter}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc(dispatch.CommandPath, commands.Handle)
}

// RegisterAgentRoutes wires the agent's HTTP handlers into the provided ServeMux.
func RegisterAgentRoutes(mux *http.ServeMux, provider identity.Provider) {
	health := HealthHandler{Service: "genbridge-agent"}
	agent := AgentHandler{Provider: provider}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc(refresh.Path, agent.Refresh)
}

// Dependencies aggregates collaborators required by the daemon's handlers.
type Dependencies struct {
	Dispatcher  CommandDispatcher
	Limiter     RateLimiter
	HealthCheck func(ctx context.Context) error
}
