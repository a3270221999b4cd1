// Package refresh carries credential refresh requests from the daemon to a
// running agent.
package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vidfriends/genbridge/internal/logging"
	"github.com/vidfriends/genbridge/internal/models"
)

var (
	// ErrChannelUnavailable indicates no agent answered the refresh request.
	ErrChannelUnavailable = errors.New("refresh channel unavailable")
	// ErrAuthDenied indicates the agent answered but has no signed-in subject.
	ErrAuthDenied = errors.New("refresh denied: no authenticated subject")
)

// Path is the agent endpoint serving refresh requests.
const Path = "/api/v1/refresh"

// DefaultTimeout bounds a refresh round trip.
const DefaultTimeout = 10 * time.Second

// Failure reasons carried in Response.Reason.
const (
	ReasonUnavailable = "unavailable"
	ReasonDenied      = "denied"
)

// Request is the message sent to the agent.
type Request struct {
	Action       string `json:"action"`
	ForceRefresh bool   `json:"forceRefresh"`
}

// Response is the agent's reply.
type Response struct {
	Success bool            `json:"success"`
	Token   string          `json:"token,omitempty"`
	User    *models.Subject `json:"user,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Channel asks the agent at AgentURL to mint a fresh credential.
type Channel struct {
	AgentURL string
	Client   *http.Client
	Timeout  time.Duration
}

// NewChannel returns a Channel bound to the agent base URL.
func NewChannel(agentURL string, timeout time.Duration) *Channel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Channel{
		AgentURL: strings.TrimRight(strings.TrimSpace(agentURL), "/"),
		Client:   &http.Client{},
		Timeout:  timeout,
	}
}

// RequestFreshCredential performs one refresh round trip. The returned
// credential has no IssuedAt; the caller stamps it when persisting.
func (c *Channel) RequestFreshCredential(ctx context.Context) (models.Credential, error) {
	if c == nil || c.AgentURL == "" {
		return models.Credential{}, fmt.Errorf("%w: no agent configured", ErrChannelUnavailable)
	}

	logger := logging.FromContext(ctx)

	body, err := json.Marshal(Request{Action: "refreshToken", ForceRefresh: true})
	if err != nil {
		return models.Credential{}, fmt.Errorf("encode refresh request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.AgentURL+Path, bytes.NewReader(body))
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID := logging.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("refresh channel not delivered", "agent", c.AgentURL, "error", err)
		return models.Credential{}, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: read reply: %v", ErrChannelUnavailable, err)
	}

	var reply Response
	if err := json.Unmarshal(raw, &reply); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return models.Credential{}, fmt.Errorf("%w: agent returned %s", ErrChannelUnavailable, resp.Status)
		}
		return models.Credential{}, fmt.Errorf("%w: decode reply: %v", ErrChannelUnavailable, err)
	}

	if !reply.Success {
		if reply.Reason == ReasonDenied {
			return models.Credential{}, ErrAuthDenied
		}
		return models.Credential{}, fmt.Errorf("%w: %s", ErrChannelUnavailable, reply.Error)
	}

	if reply.User == nil || strings.TrimSpace(reply.User.ID) == "" {
		return models.Credential{}, ErrAuthDenied
	}

	return models.Credential{Token: reply.Token, Subject: *reply.User}, nil
}

func (c *Channel) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
