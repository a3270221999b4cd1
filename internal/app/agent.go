package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/vidfriends/genbridge/internal/dispatch"
	"github.com/vidfriends/genbridge/internal/handlers"
	"github.com/vidfriends/genbridge/internal/httpserver"
	"github.com/vidfriends/genbridge/internal/identity"
	"github.com/vidfriends/genbridge/internal/logging"
	"github.com/vidfriends/genbridge/internal/middleware"
)

// runAgent signs in, pushes the new auth state into the daemon and then
// serves refresh requests until interrupted.
func runAgent(ctx context.Context, args []string) error {
	fs := newFlagSet("agent")
	configPath := fs.String("config", "", "path to a YAML config file")
	email := fs.String("email", "", "account email (overrides GENBRIDGE_AGENT_EMAIL)")
	password := fs.String("password", "", "account password (prefer GENBRIDGE_AGENT_PASSWORD)")
	signOut := fs.Bool("sign-out", false, "clear the daemon's stored credential and exit")
	port := fs.Int("port", 0, "port serving refresh requests (overrides GENBRIDGE_AGENT_PORT)")
	daemonURL := fs.String("daemon", "", "daemon base URL (overrides GENBRIDGE_DAEMON_URL)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if fs.Changed("email") {
		cfg.Agent.Email = *email
	}
	if fs.Changed("password") {
		cfg.Agent.Password = *password
	}
	if fs.Changed("port") {
		cfg.Agent.Port = *port
	}
	if fs.Changed("daemon") {
		cfg.Agent.DaemonURL = *daemonURL
	}

	logger := newLogger(cfg, os.Stdout).With("component", "agent")
	ctx = logging.WithLogger(ctx, logger)

	daemon := dispatch.NewClient(cfg.Agent.DaemonURL, cfg.RefreshTimeout)
	daemon.Surface = "agent"

	if *signOut {
		if err := pushSignedOut(ctx, daemon); err != nil {
			return err
		}
		logger.Info("signed out")
		return nil
	}

	if strings.TrimSpace(cfg.Agent.TokenURL) == "" {
		return errors.New("identity provider token URL is required (GENBRIDGE_IDP_TOKEN_URL)")
	}

	provider := identity.NewOAuth2Provider(identity.OAuth2Config{
		TokenURL:     cfg.Agent.TokenURL,
		ClientID:     cfg.Agent.ClientID,
		ClientSecret: cfg.Agent.ClientSecret,
		Scopes:       cfg.Agent.Scopes,
	})

	subject, err := provider.SignIn(ctx, cfg.Agent.Email, cfg.Agent.Password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	logger.Info("signed in", "userId", subject.ID, "email", subject.Email)

	if err := pushAuthState(ctx, daemon, provider); err != nil {
		// The daemon asks for a fresh token on its next request anyway.
		logger.Warn("push auth state to daemon", "error", err)
	}

	mux := http.NewServeMux()
	handlers.RegisterAgentRoutes(mux, provider)

	handler := middleware.RequestLogger(logger)(mux)
	srv := httpserver.New(httpserver.ListenAddr(cfg.BindHost, cfg.Agent.Port), handler, cfg.RefreshTimeout+writeSlack)

	return srv.Run(ctx, logger)
}

// pushAuthState tells the daemon who is signed in and with which token.
func pushAuthState(ctx context.Context, daemon *dispatch.Client, provider identity.Provider) error {
	token, err := provider.FreshToken(ctx, false)
	if err != nil {
		return fmt.Errorf("current token: %w", err)
	}
	subject, err := provider.CurrentSubject(ctx)
	if err != nil {
		return fmt.Errorf("current subject: %w", err)
	}

	return sendAuthState(ctx, daemon, dispatch.Command{
		Action: dispatch.ActionAuthStateChanged,
		Token:  token,
		User:   subject,
	})
}

func pushSignedOut(ctx context.Context, daemon *dispatch.Client) error {
	return sendAuthState(ctx, daemon, dispatch.Command{Action: dispatch.ActionAuthStateChanged})
}

func sendAuthState(ctx context.Context, daemon *dispatch.Client, cmd dispatch.Command) error {
	resp, err := daemon.Send(ctx, cmd)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("daemon rejected auth state: %s", resp.Error)
	}
	logging.FromContext(ctx).Debug("auth state pushed", slog.String("requestId", resp.RequestID), slog.Bool("signedIn", cmd.User != nil))
	return nil
}
