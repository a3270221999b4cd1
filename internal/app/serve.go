package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/vidfriends/genbridge/internal/handlers"
	"github.com/vidfriends/genbridge/internal/httpserver"
	"github.com/vidfriends/genbridge/internal/logging"
	"github.com/vidfriends/genbridge/internal/middleware"
)

// writeSlack is added to the generation deadline so a timed-out command can
// still write its envelope.
const writeSlack = 30 * time.Second

func serve(ctx context.Context, args []string) error {
	fs := newFlagSet("serve")
	configPath := fs.String("config", "", "path to a YAML config file")
	port := fs.Int("port", 0, "port to listen on (overrides GENBRIDGE_PORT)")
	backend := fs.String("store", "", "credential store backend: file, memory, redis or postgres")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if fs.Changed("port") {
		cfg.AppPort = *port
	}
	if fs.Changed("store") {
		cfg.Store.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg, os.Stdout)
	ctx = logging.WithLogger(ctx, logger)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	deps, cleanup, err := buildDependencies(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			logger.Warn("release dependencies", "error", err)
		}
	}()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	handler := middleware.RequestLogger(logger)(mux)
	srv := httpserver.New(httpserver.ListenAddr(cfg.BindHost, cfg.AppPort), handler, cfg.RequestTimeout+writeSlack)

	logger.Info("daemon configured",
		"store", cfg.Store.Backend,
		"agent", cfg.AgentURL,
		"endpoint", cfg.APIEndpoint,
		"archive", cfg.Archive.Enabled(),
	)

	return srv.Run(ctx, logger)
}
