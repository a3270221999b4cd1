package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidfriends/genbridge/internal/credentials"
	"github.com/vidfriends/genbridge/internal/db"
	"github.com/vidfriends/genbridge/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if _, err := db.Migrate(ctx, pool, filepath.Join("..", "..", "migrations")); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresCredentialStore_SetGetAndClear(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	store := NewPostgresCredentialStore(testPool, "")

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get empty store: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no credential, got %+v", got)
	}

	issued := time.Now().UTC().Truncate(time.Millisecond)
	credential := models.Credential{
		Token:    strings.Repeat("a", 150),
		IssuedAt: issued,
		Subject:  models.Subject{ID: uuid.NewString(), DisplayName: "Ada", Email: "ada@example.com"},
	}
	if err := store.Set(ctx, credential); err != nil {
		t.Fatalf("set credential: %v", err)
	}

	got, err = store.Get(ctx)
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if got == nil || got.Token != credential.Token || got.Subject != credential.Subject || !timesClose(got.IssuedAt, issued, time.Millisecond) {
		t.Fatalf("unexpected credential loaded: %+v", got)
	}

	replacement := credential
	replacement.Token = strings.Repeat("b", 150)
	replacement.IssuedAt = issued.Add(time.Minute)
	if err := store.Set(ctx, replacement); err != nil {
		t.Fatalf("replace credential: %v", err)
	}

	got, err = store.Get(ctx)
	if err != nil {
		t.Fatalf("get replaced credential: %v", err)
	}
	if got.Token != replacement.Token || !timesClose(got.IssuedAt, replacement.IssuedAt, time.Millisecond) {
		t.Fatalf("expected replacement to persist, got %+v", got)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear credential: %v", err)
	}
	if got, err := store.Get(ctx); err != nil || got != nil {
		t.Fatalf("expected empty store after clear, got %+v, %v", got, err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear empty store: %v", err)
	}
}

func TestPostgresCredentialStore_RejectsIncomplete(t *testing.T) {
	resetDatabase(t)
	store := NewPostgresCredentialStore(testPool, "incomplete")

	err := store.Set(context.Background(), models.Credential{Token: strings.Repeat("a", 150)})
	if !errors.Is(err, credentials.ErrIncompleteCredential) {
		t.Fatalf("expected ErrIncompleteCredential, got %v", err)
	}
	if got, err := store.Get(context.Background()); err != nil || got != nil {
		t.Fatalf("expected nothing written, got %+v, %v", got, err)
	}
}

func TestPostgresCredentialStore_SlotsAreIndependent(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	first := NewPostgresCredentialStore(testPool, "first")
	second := NewPostgresCredentialStore(testPool, "second")

	credential := models.Credential{
		Token:    strings.Repeat("c", 120),
		IssuedAt: time.Now().UTC(),
		Subject:  models.Subject{ID: "uid-1"},
	}
	if err := first.Set(ctx, credential); err != nil {
		t.Fatalf("set first slot: %v", err)
	}
	if got, err := second.Get(ctx); err != nil || got != nil {
		t.Fatalf("expected second slot empty, got %+v, %v", got, err)
	}
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE credentials"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
