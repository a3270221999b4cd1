package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/vidfriends/genbridge/internal/config"
	"github.com/vidfriends/genbridge/internal/logging"
)

const usage = `usage: genbridge <command> [flags]

commands:
  serve     run the long-lived daemon serving UI commands
  agent     sign in and answer the daemon's credential refresh requests
  migrate   apply or list Postgres credential store migrations
  call      send one command to the daemon and print the reply`

// Run bootstraps the genbridge command named by args[0].
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "agent":
		return runAgent(ctx, args[1:])
	case "migrate":
		return runMigrations(ctx, args[1:], os.Stdout)
	case "call":
		return runCall(ctx, args[1:], os.Stdout)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

// loadConfig reads configuration, letting --config replace GENBRIDGE_CONFIG.
func loadConfig(configPath string) (config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	logger := logging.New(cfg.LogLevel, w)
	slog.SetDefault(logger)
	return logger
}
