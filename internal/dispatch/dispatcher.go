// Package dispatch routes commands from UI surfaces to the token orchestrator
// and the generation executor, and resolves each command exactly once.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidfriends/genbridge/internal/credentials"
	"github.com/vidfriends/genbridge/internal/logging"
	"github.com/vidfriends/genbridge/internal/models"
	"github.com/vidfriends/genbridge/internal/outcome"
	"github.com/vidfriends/genbridge/internal/videos"
)

// Actions understood by the daemon.
const (
	ActionDownloadVideo    = "downloadVideo"
	ActionGetAuthToken     = "getAuthToken"
	ActionGetCurrentUser   = "getCurrentUser"
	ActionAuthStateChanged = "authStateChanged"
	ActionDiagnostics      = "diagnostics"
	ActionRefreshToken     = "refreshToken"
)

// Command is one inbound request from a UI surface.
type Command struct {
	Action string `json:"action"`

	URL        string `json:"url,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	Count      int    `json:"count,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	Size       string `json:"size,omitempty"`
	Language   string `json:"language,omitempty"`
	UploadedBy string `json:"uploadedBy,omitempty"`

	Token string          `json:"token,omitempty"`
	User  *models.Subject `json:"user,omitempty"`
}

// Response is the envelope returned for every command.
type Response struct {
	RequestID   string          `json:"requestId"`
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data,omitempty"`
	Token       string          `json:"token,omitempty"`
	User        *models.Subject `json:"user,omitempty"`
	Diagnostics *Diagnostics    `json:"diagnostics,omitempty"`

	Error     string         `json:"error,omitempty"`
	ErrorKind outcome.Kind   `json:"errorKind,omitempty"`
	Status    int            `json:"status,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// FailureResponse renders err as an unsuccessful envelope.
func FailureResponse(err error) Response {
	f := outcome.From(err)
	return Response{
		Success:   false,
		Error:     f.Message,
		ErrorKind: f.Kind,
		Status:    f.Status,
		Detail:    f.Detail,
	}
}

// TokenAcquirer produces the credential used for one outbound request.
type TokenAcquirer interface {
	Acquire(ctx context.Context) (models.Credential, error)
}

// Executor performs one generation request.
type Executor interface {
	Execute(ctx context.Context, job models.GenerationJob, token string) (json.RawMessage, error)
}

// Archiver receives successful generation payloads.
type Archiver interface {
	Enqueue(ctx context.Context, record videos.ArchiveRecord) error
}

// Config holds the values commands need besides their collaborators.
type Config struct {
	APIEndpoint     string
	VideoHost       string
	VideoPathMarker string
	Origin          string
	AgentURL        string
	StoreBackend    string
}

// Dependencies are the collaborators a Dispatcher routes to. Archive is optional.
type Dependencies struct {
	Tokens   TokenAcquirer
	Executor Executor
	Store    credentials.Store
	Archive  Archiver
}

// Dispatcher resolves commands against its dependencies.
type Dispatcher struct {
	cfg  Config
	deps Dependencies
	now  func() time.Time
}

// New constructs a Dispatcher.
func New(cfg Config, deps Dependencies) *Dispatcher {
	if deps.Store == nil {
		panic("dispatch: credential store must not be nil")
	}
	return &Dispatcher{cfg: cfg, deps: deps, now: time.Now}
}

// WithNowFunc overrides the clock, for tests.
func (d *Dispatcher) WithNowFunc(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Pending is a submitted command awaiting its single response.
type Pending struct {
	id   string
	once sync.Once
	done chan struct{}
	resp Response
}

// ID returns the correlation id assigned at submission.
func (p *Pending) ID() string {
	return p.id
}

// Wait blocks until the command resolves or ctx ends. A ctx ending does not
// resolve the command; it only stops this caller waiting for it.
func (p *Pending) Wait(ctx context.Context) Response {
	select {
	case <-p.done:
		return p.resp
	case <-ctx.Done():
		resp := FailureResponse(outcome.Wrap(outcome.KindNetwork, "Stopped waiting before the command completed", ctx.Err()))
		resp.RequestID = p.id
		return resp
	}
}

// Done is closed once the command has resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

func (p *Pending) resolve(resp Response) {
	p.once.Do(func() {
		resp.RequestID = p.id
		p.resp = resp
		close(p.done)
	})
}

// Submit starts cmd on its own goroutine and returns a handle to its response.
func (d *Dispatcher) Submit(ctx context.Context, cmd Command) *Pending {
	p := &Pending{id: uuid.NewString(), done: make(chan struct{})}

	logger := logging.FromContext(ctx).With("correlationId", p.id, "action", cmd.Action)
	ctx = logging.WithLogger(logging.WithCorrelationID(ctx, p.id), logger)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("command panicked", "panic", r, "stack", string(debug.Stack()))
				p.resolve(FailureResponse(outcome.New(outcome.KindInternal, fmt.Sprintf("internal error: %v", r))))
			}
		}()

		start := time.Now()
		resp := d.handle(ctx, cmd)
		logCompletion(logger, resp, time.Since(start))
		p.resolve(resp)
	}()

	return p
}

// Dispatch submits cmd and waits for its response.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Response {
	return d.Submit(ctx, cmd).Wait(ctx)
}

func logCompletion(logger *slog.Logger, resp Response, elapsed time.Duration) {
	if resp.Success {
		logger.Info("command completed", "duration", elapsed)
		return
	}
	logger.Warn("command failed", "duration", elapsed, "errorKind", string(resp.ErrorKind), "status", resp.Status, "error", resp.Error)
}

func (d *Dispatcher) handle(ctx context.Context, cmd Command) Response {
	switch cmd.Action {
	case ActionDownloadVideo:
		return d.downloadVideo(ctx, cmd)
	case ActionGetAuthToken:
		return d.getAuthToken(ctx)
	case ActionGetCurrentUser:
		return d.getCurrentUser(ctx)
	case ActionAuthStateChanged:
		return d.authStateChanged(ctx, cmd)
	case ActionDiagnostics:
		return Response{Success: true, Diagnostics: d.diagnostics(ctx)}
	case ActionRefreshToken:
		return FailureResponse(outcome.New(outcome.KindInvalid, "refreshToken is answered by the agent, not the daemon"))
	default:
		return FailureResponse(outcome.New(outcome.KindInvalid, fmt.Sprintf("Unknown action %q", cmd.Action)))
	}
}
