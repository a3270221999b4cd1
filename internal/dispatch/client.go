package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vidfriends/genbridge/internal/logging"
)

const (
	// CommandPath is the daemon endpoint accepting commands.
	CommandPath = "/api/v1/commands"
	// SurfaceHeader names the UI surface sending a command.
	SurfaceHeader = "X-Genbridge-Surface"
)

// Client submits commands to a running daemon, for the agent and the CLI.
type Client struct {
	BaseURL string
	Surface string
	HTTP    *http.Client
}

// NewClient returns a Client for the daemon at baseURL. timeout bounds each
// call and must exceed the daemon's generation deadline for downloadVideo.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Send posts cmd and decodes the envelope. Failed commands are returned as a
// Response with Success false; the error covers transport problems only.
func (c *Client) Send(ctx context.Context, cmd Command) (Response, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+CommandPath, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Surface != "" {
		req.Header.Set(SurfaceHeader, c.Surface)
	}
	if requestID := logging.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("send %s to daemon: %w", cmd.Action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read daemon reply: %w", err)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, fmt.Errorf("daemon returned %s: %w", resp.Status, err)
	}
	return out, nil
}
