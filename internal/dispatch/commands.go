package dispatch

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/vidfriends/genbridge/internal/logging"
	"github.com/vidfriends/genbridge/internal/models"
	"github.com/vidfriends/genbridge/internal/outcome"
	"github.com/vidfriends/genbridge/internal/videos"
)

func (d *Dispatcher) downloadVideo(ctx context.Context, cmd Command) Response {
	logger := logging.FromContext(ctx)

	videoURL := strings.TrimSpace(cmd.URL)
	if !videos.ValidVideoURL(videoURL, d.cfg.VideoHost, d.cfg.VideoPathMarker) {
		return FailureResponse(outcome.New(outcome.KindInvalid, "Invalid video URL provided"))
	}

	job, err := buildJob(cmd)
	if err != nil {
		return FailureResponse(err)
	}
	job.TargetURL = d.cfg.APIEndpoint
	job.VideoURL = videoURL

	if d.deps.Tokens == nil || d.deps.Executor == nil {
		return FailureResponse(outcome.New(outcome.KindInternal, "generation is not configured"))
	}

	credential, err := d.deps.Tokens.Acquire(ctx)
	if err != nil {
		return FailureResponse(err)
	}
	job.UserID = credential.Subject.ID

	logger.Info("submitting generation job", "jobId", job.ID, "count", job.Count, "duration", job.Duration, "size", job.Size)

	payload, err := d.deps.Executor.Execute(ctx, job, credential.Token)
	if err != nil {
		return FailureResponse(err)
	}

	if d.deps.Archive != nil {
		record := videos.ArchiveRecord{
			JobID:    job.ID,
			UserID:   job.UserID,
			VideoURL: job.VideoURL,
			Payload:  payload,
			At:       d.now(),
		}
		if err := d.deps.Archive.Enqueue(ctx, record); err != nil {
			logger.Warn("archive generation result", "jobId", job.ID, "error", err)
		}
	}

	return Response{Success: true, Data: payload}
}

// buildJob applies option defaults and rejects values outside the option sets.
func buildJob(cmd Command) (models.GenerationJob, error) {
	job := models.GenerationJob{
		ID:         uuid.NewString(),
		Prompt:     strings.TrimSpace(cmd.Prompt),
		Count:      cmd.Count,
		Duration:   cmd.Duration,
		Size:       strings.TrimSpace(cmd.Size),
		Language:   strings.TrimSpace(cmd.Language),
		UploadedBy: strings.TrimSpace(cmd.UploadedBy),
	}

	if job.Count == 0 {
		job.Count = models.DefaultCount
	}
	if job.Duration == 0 {
		job.Duration = models.DefaultDuration
	}
	if job.Size == "" {
		job.Size = models.DefaultSize
	}
	if job.Language == "" {
		job.Language = models.DefaultLanguage
	}

	if job.Count < models.MinCount || job.Count > models.MaxCount {
		return models.GenerationJob{}, outcome.New(outcome.KindInvalid, fmt.Sprintf("count must be between %d and %d", models.MinCount, models.MaxCount))
	}
	if !slices.Contains(models.Durations, job.Duration) {
		return models.GenerationJob{}, outcome.New(outcome.KindInvalid, fmt.Sprintf("duration must be one of %v seconds", models.Durations))
	}
	if !slices.Contains(models.Sizes, job.Size) {
		return models.GenerationJob{}, outcome.New(outcome.KindInvalid, fmt.Sprintf("size must be one of %s", strings.Join(models.Sizes, ", ")))
	}

	return job, nil
}

func (d *Dispatcher) getAuthToken(ctx context.Context) Response {
	if d.deps.Tokens == nil {
		return FailureResponse(outcome.AuthRequired(nil))
	}
	credential, err := d.deps.Tokens.Acquire(ctx)
	if err != nil {
		return FailureResponse(err)
	}
	return Response{Success: true, Token: credential.Token}
}

// getCurrentUser reports the stored subject. A missing or unreadable
// credential is answered with no user rather than an error.
func (d *Dispatcher) getCurrentUser(ctx context.Context) Response {
	stored, err := d.deps.Store.Get(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("read stored credential", "error", err)
		return Response{Success: true}
	}
	if stored == nil {
		return Response{Success: true}
	}
	subject := stored.Subject
	return Response{Success: true, User: &subject}
}

// authStateChanged mirrors the agent's sign-in state into the store. It always
// succeeds; persistence problems are only logged.
func (d *Dispatcher) authStateChanged(ctx context.Context, cmd Command) Response {
	logger := logging.FromContext(ctx)

	token := strings.TrimSpace(cmd.Token)
	if token == "" || cmd.User == nil || strings.TrimSpace(cmd.User.ID) == "" {
		if err := d.deps.Store.Clear(ctx); err != nil {
			logger.Error("clear stored credential", "error", err)
		} else {
			logger.Info("stored credential cleared")
		}
		return Response{Success: true}
	}

	credential := models.Credential{
		Token:    token,
		IssuedAt: d.now().UTC(),
		Subject:  *cmd.User,
	}
	if err := d.deps.Store.Set(ctx, credential); err != nil {
		logger.Error("store credential", "error", err)
	} else {
		logger.Info("stored credential updated", "userId", credential.Subject.ID)
	}
	return Response{Success: true}
}
