package videos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vidfriends/genbridge/internal/logging"
	"github.com/vidfriends/genbridge/internal/models"
	"github.com/vidfriends/genbridge/internal/outcome"
)

// DefaultTimeout is the hard deadline for one generation request.
const DefaultTimeout = 240 * time.Second

const maxResponseBytes = 8 << 20

// GeneratorConfig controls request validation and transport policy.
type GeneratorConfig struct {
	// EndpointPattern must appear in every job's target URL.
	EndpointPattern string
	// VideoHost is the site domain a source video URL must belong to.
	VideoHost string
	// VideoPathMarker must appear in the source video URL path.
	VideoPathMarker string
	// Origin identifies this caller in the Origin header and in CORS diagnostics.
	Origin  string
	Timeout time.Duration
	Headers map[string]string
}

// Generator submits generation jobs to the remote API. Each call is a single
// attempt; retry policy belongs to the caller.
type Generator struct {
	cfg    GeneratorConfig
	Client *http.Client
}

// NewGenerator constructs a Generator with the provided configuration.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.VideoHost) == "" {
		cfg.VideoHost = "tiktok.com"
	}
	if strings.TrimSpace(cfg.VideoPathMarker) == "" {
		cfg.VideoPathMarker = "/video/"
	}
	return &Generator{cfg: cfg, Client: &http.Client{}}
}

// Timeout returns the configured deadline.
func (g *Generator) Timeout() time.Duration {
	return g.cfg.Timeout
}

type generationRequest struct {
	URL        string `json:"url"`
	UserID     string `json:"userId"`
	Count      int    `json:"count"`
	Duration   int    `json:"duration"`
	Size       string `json:"size"`
	Language   string `json:"language"`
	UploadedBy string `json:"uploaded_by"`
	Prompt     string `json:"prompt"`
}

// Execute sends job with the bearer token and returns the decoded success
// payload. Every error is an *outcome.Failure.
func (g *Generator) Execute(ctx context.Context, job models.GenerationJob, token string) (json.RawMessage, error) {
	if err := g.Validate(job); err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, outcome.AuthRequired(nil)
	}

	ctx, span := logging.StartSpan(ctx, "generate")
	defer span.End()
	logger := logging.FromContext(ctx)

	body, err := json.Marshal(generationRequest{
		URL:        job.VideoURL,
		UserID:     job.UserID,
		Count:      job.Count,
		Duration:   job.Duration,
		Size:       job.Size,
		Language:   job.Language,
		UploadedBy: job.UploadedBy,
		Prompt:     job.Prompt,
	})
	if err != nil {
		return nil, outcome.Wrap(outcome.KindInvalid, "encode generation request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, job.TargetURL, bytes.NewReader(body))
	if err != nil {
		return nil, outcome.Wrap(outcome.KindInvalid, "build generation request", err)
	}
	for k, v := range g.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.cfg.Origin != "" {
		req.Header.Set("Origin", g.cfg.Origin)
	}

	logger.Info("submitting generation request", "jobId", job.ID, "endpoint", job.TargetURL, "video", job.VideoURL)

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		failure := g.classifyTransport(err)
		logger.Error("generation request failed", "jobId", job.ID, "kind", string(failure.Kind), "error", err)
		return nil, failure
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		failure := g.classifyTransport(err)
		logger.Error("read generation response", "jobId", job.ID, "kind", string(failure.Kind), "error", err)
		return nil, failure
	}

	logger.Info("generation response received", "jobId", job.ID, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, outcome.ServerError(resp.StatusCode, errorMessage(raw, resp))
	}
	if !json.Valid(raw) {
		return nil, outcome.ServerError(resp.StatusCode, "server returned an invalid JSON response")
	}
	return json.RawMessage(raw), nil
}

// Validate checks the target and source URLs without touching the network.
func (g *Generator) Validate(job models.GenerationJob) error {
	target, err := url.Parse(strings.TrimSpace(job.TargetURL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return outcome.New(outcome.KindInvalid, fmt.Sprintf("Invalid API endpoint %q", job.TargetURL))
	}
	if g.cfg.EndpointPattern != "" && !strings.Contains(job.TargetURL, g.cfg.EndpointPattern) {
		return outcome.New(outcome.KindInvalid, fmt.Sprintf("API endpoint %q does not match %q", job.TargetURL, g.cfg.EndpointPattern))
	}
	if !ValidVideoURL(job.VideoURL, g.cfg.VideoHost, g.cfg.VideoPathMarker) {
		return outcome.New(outcome.KindInvalid, "Invalid video URL provided")
	}
	return nil
}

// ValidVideoURL reports whether raw is an http(s) URL on host (or one of its
// subdomains) whose path contains marker.
func ValidVideoURL(raw, host, marker string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	hostname := strings.ToLower(u.Hostname())
	host = strings.ToLower(strings.TrimSpace(host))
	if host != "" && hostname != host && !strings.HasSuffix(hostname, "."+host) {
		return false
	}
	return marker == "" || strings.Contains(u.Path, marker)
}

var corsMarkers = []string{"cors", "cross-origin", "preflight", "access-control-allow-origin", "failed to fetch"}

func (g *Generator) classifyTransport(err error) *outcome.Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return outcome.Wrap(outcome.KindTimeout,
			fmt.Sprintf("Request timed out after %s. The server may still be processing the video.", describeTimeout(g.cfg.Timeout)), err)
	}
	if errors.Is(err, context.Canceled) {
		return outcome.Wrap(outcome.KindNetwork, "Request was cancelled before the server responded.", err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range corsMarkers {
		if strings.Contains(msg, marker) {
			f := outcome.Wrap(outcome.KindNetwork,
				"Network error: the request was rejected by a cross-origin (CORS) check. The server must allow this origin.", err)
			f.Detail = corsDetail(g.cfg.Origin)
			return f
		}
	}

	return outcome.Wrap(outcome.KindNetwork,
		"Network error: could not connect to server. Check that the server is running and reachable.", err)
}

func corsDetail(origin string) map[string]any {
	allowOrigin := origin
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return map[string]any{
		"origin": origin,
		"requiredHeaders": []string{
			"Access-Control-Allow-Origin: " + allowOrigin,
			"Access-Control-Allow-Methods: POST, OPTIONS",
			"Access-Control-Allow-Headers: Authorization, Content-Type, Accept",
		},
	}
}

// errorMessage extracts a human-readable reason from a rejected response:
// JSON message or error first, then the plain body, then the status line.
func errorMessage(raw []byte, resp *http.Response) string {
	var body struct {
		Message any `json:"message"`
		Error   any `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, candidate := range []any{body.Message, body.Error} {
			switch v := candidate.(type) {
			case string:
				if strings.TrimSpace(v) != "" {
					return v
				}
			case map[string]any:
				if m, ok := v["message"].(string); ok && m != "" {
					return m
				}
			}
		}
	}

	if text := strings.TrimSpace(string(raw)); text != "" {
		const limit = 500
		if len(text) > limit {
			text = text[:limit] + "..."
		}
		return text
	}

	return fmt.Sprintf("HTTP %s", resp.Status)
}

// describeTimeout names d in whole seconds, falling back to the exact value
// below one second.
func describeTimeout(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}
	return fmt.Sprintf("%d seconds", int(math.Ceil(d.Seconds())))
}
