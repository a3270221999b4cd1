package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidfriends/genbridge/internal/db"
)

func runMigrations(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("migrate")
	configPath := fs.String("config", "", "path to a YAML config file")
	dir := fs.String("dir", "", "migrations directory (overrides GENBRIDGE_MIGRATIONS)")
	databaseURL := fs.String("database-url", "", "Postgres URL (overrides GENBRIDGE_DATABASE_URL)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := "up"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}
	switch command {
	case "up", "status":
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if fs.Changed("dir") {
		cfg.MigrationDir = *dir
	}
	if fs.Changed("database-url") {
		cfg.Store.DatabaseURL = *databaseURL
	}
	if strings.TrimSpace(cfg.Store.DatabaseURL) == "" {
		return errors.New("database URL is required (GENBRIDGE_DATABASE_URL)")
	}

	migrationDir := cfg.MigrationDir
	if !filepath.IsAbs(migrationDir) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		migrationDir = filepath.Join(wd, migrationDir)
	}

	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if command == "status" {
		states, err := db.MigrationStatus(ctx, pool, migrationDir)
		if err != nil {
			return err
		}
		for _, state := range states {
			mark := " "
			if state.Applied {
				mark = "x"
			}
			fmt.Fprintf(out, "[%s] %s\n", mark, state.Name)
		}
		return nil
	}

	applied, err := db.Migrate(ctx, pool, migrationDir)
	for _, name := range applied {
		fmt.Fprintf(out, "applied migration %s\n", name)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "no migrations to apply")
	}
	return nil
}
