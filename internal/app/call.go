package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vidfriends/genbridge/internal/dispatch"
	"github.com/vidfriends/genbridge/internal/models"
)

// runCall acts as a UI surface: it sends one command to the daemon and prints
// the reply envelope. A failed command exits non-zero.
func runCall(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("call")
	configPath := fs.String("config", "", "path to a YAML config file")
	daemonURL := fs.String("daemon", "", "daemon base URL (overrides GENBRIDGE_DAEMON_URL)")
	videoURL := fs.String("url", "", "video URL for downloadVideo")
	prompt := fs.String("prompt", "", "generation prompt")
	count := fs.Int("count", 0, "number of videos to generate (1-5)")
	duration := fs.Int("duration", 0, "clip length in seconds (4, 8 or 12)")
	size := fs.String("size", "", "output size, e.g. 720x1280")
	language := fs.String("language", "", "narration language")
	uploadedBy := fs.String("uploaded-by", "", "display name recorded with the job")
	token := fs.String("token", "", "token for authStateChanged")
	userID := fs.String("user-id", "", "subject id for authStateChanged")
	userEmail := fs.String("user-email", "", "subject email for authStateChanged")
	userName := fs.String("user-name", "", "subject display name for authStateChanged")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: genbridge call <action> [flags]")
	}

	cmd := dispatch.Command{
		Action:     strings.TrimSpace(fs.Arg(0)),
		URL:        *videoURL,
		Prompt:     *prompt,
		Count:      *count,
		Duration:   *duration,
		Size:       *size,
		Language:   *language,
		UploadedBy: *uploadedBy,
		Token:      *token,
	}
	if *userID != "" {
		cmd.User = &models.Subject{ID: *userID, Email: *userEmail, DisplayName: *userName}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	base := cfg.Agent.DaemonURL
	if fs.Changed("daemon") {
		base = *daemonURL
	}

	client := dispatch.NewClient(base, cfg.RequestTimeout+writeSlack)
	client.Surface = "cli"
	resp, err := client.Send(ctx, cmd)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("print reply: %w", err)
	}

	if !resp.Success {
		return fmt.Errorf("%s failed (%s): %s", cmd.Action, resp.ErrorKind, resp.Error)
	}
	return nil
}
