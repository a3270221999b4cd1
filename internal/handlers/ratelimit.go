package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/vidfriends/genbridge/internal/dispatch"
)

// RateLimiter is the minimal interface required to guard the command endpoint.
type RateLimiter interface {
	Allow(key string) bool
}

func allowCommand(limiter RateLimiter, r *http.Request) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(callerKey(r))
}

// callerKey identifies a UI surface. The daemon listens on loopback, so every
// caller shares an address and the surface name does most of the separating.
func callerKey(r *http.Request) string {
	surface := strings.ToLower(strings.TrimSpace(r.Header.Get(dispatch.SurfaceHeader)))
	if surface == "" {
		surface = "anonymous"
	}
	return surface + "@" + remoteHost(r)
}

func remoteHost(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err == nil && host != "" {
		return host
	}
	return addr
}
