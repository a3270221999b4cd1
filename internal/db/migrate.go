package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	migrationMaxRetries  = 3
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// MigrationState reports whether one migration file has been applied.
type MigrationState struct {
	Name    string
	Applied bool
}

// ListMigrations returns the .sql files in dir in the order they apply.
func ListMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		migrations = append(migrations, entry.Name())
	}
	sort.Strings(migrations)
	return migrations, nil
}

// MigrationStatus lists every migration in dir with its applied flag.
func MigrationStatus(ctx context.Context, pool Pool, dir string) ([]MigrationState, error) {
	migrations, err := ListMigrations(dir)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return nil, err
	}

	states := make([]MigrationState, 0, len(migrations))
	for _, name := range migrations {
		_, ok := applied[name]
		states = append(states, MigrationState{Name: name, Applied: ok})
	}
	return states, nil
}

// Migrate applies every migration in dir not yet recorded in
// schema_migrations and returns the names it applied.
func Migrate(ctx context.Context, pool Pool, dir string) ([]string, error) {
	migrations, err := ListMigrations(dir)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, name := range migrations {
		if _, ok := applied[name]; ok {
			continue
		}

		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return ran, fmt.Errorf("read migration %s: %w", name, err)
		}

		if err := applyMigrationWithRetry(ctx, conn, name, string(contents)); err != nil {
			return ran, err
		}
		ran = append(ran, name)
	}
	return ran, nil
}

func appliedMigrations(ctx context.Context, conn *pgxpool.Conn) (map[string]struct{}, error) {
	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
                version TEXT PRIMARY KEY,
                applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

func applyMigrationWithRetry(ctx context.Context, conn *pgxpool.Conn, name string, contents string) error {
	var lastErr error
	for attempt := 0; attempt < migrationMaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, migrationBackoff(attempt)); err != nil {
				return err
			}
		}

		lastErr = applyMigration(ctx, conn, name, contents)
		if lastErr == nil {
			return nil
		}
		if !shouldRetryMigration(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("apply migration %s: exceeded max retries (%d): %w", name, migrationMaxRetries, lastErr)
}

func applyMigration(ctx context.Context, conn *pgxpool.Conn, name string, contents string) error {
	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin migration transaction for %s: %w", name, err)
	}

	if _, err := tx.Exec(ctx, contents); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

func migrationBackoff(attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * migrationBaseBackoff
	if backoff > migrationMaxBackoff {
		backoff = migrationMaxBackoff
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func shouldRetryMigration(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}
