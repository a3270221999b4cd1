package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vidfriends/genbridge/internal/credentials"
	"github.com/vidfriends/genbridge/internal/dispatch"
	"github.com/vidfriends/genbridge/internal/handlers"
	"github.com/vidfriends/genbridge/internal/models"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GENBRIDGE_CONFIG", "")
	t.Setenv("GENBRIDGE_STORE_BACKEND", "memory")
	t.Setenv("GENBRIDGE_DATABASE_URL", "")
}

func newTestDaemon(t *testing.T) (*httptest.Server, *credentials.MemoryStore) {
	t.Helper()
	store := credentials.NewMemoryStore()
	d := dispatch.New(dispatch.Config{VideoHost: "tiktok.com", VideoPathMarker: "/video/"}, dispatch.Dependencies{Store: store})

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, handlers.Dependencies{Dispatcher: d})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := Run(context.Background(), nil); err == nil {
		t.Fatal("expected usage error without a command")
	}
	err := Run(context.Background(), []string{"seed"})
	if err == nil || !strings.Contains(err.Error(), `unknown command "seed"`) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRunCallStoresAndReadsUser(t *testing.T) {
	isolateEnv(t)
	server, store := newTestDaemon(t)

	var out bytes.Buffer
	err := runCall(context.Background(), []string{
		"authStateChanged",
		"--daemon", server.URL,
		"--token", "token-1",
		"--user-id", "uid-1",
		"--user-email", "ada@example.com",
	}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := store.Get(context.Background())
	if err != nil || stored == nil {
		t.Fatalf("expected stored credential, got %v %v", stored, err)
	}
	if stored.Token != "token-1" || stored.Subject.Email != "ada@example.com" {
		t.Fatalf("unexpected credential %+v", stored)
	}

	out.Reset()
	if err := runCall(context.Background(), []string{"getCurrentUser", "--daemon", server.URL}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), `"id": "uid-1"`) {
		t.Fatalf("expected user in output, got %s", out.String())
	}
}

func TestRunCallReportsFailedCommand(t *testing.T) {
	isolateEnv(t)
	server, _ := newTestDaemon(t)

	var out bytes.Buffer
	err := runCall(context.Background(), []string{"downloadVideo", "--daemon", server.URL, "--url", "https://example.com/clip"}, &out)
	if err == nil {
		t.Fatal("expected error for rejected command")
	}
	if !strings.Contains(out.String(), `"errorKind": "Invalid"`) {
		t.Fatalf("expected envelope in output, got %s", out.String())
	}
}

func TestRunCallRequiresAction(t *testing.T) {
	isolateEnv(t)
	if err := runCall(context.Background(), []string{"--daemon", "http://127.0.0.1:1"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected usage error")
	}
}

type providerStub struct {
	token   string
	subject *models.Subject
	err     error
}

func (p providerStub) FreshToken(context.Context, bool) (string, error) {
	return p.token, p.err
}

func (p providerStub) CurrentSubject(context.Context) (*models.Subject, error) {
	return p.subject, nil
}

func TestPushAuthState(t *testing.T) {
	server, store := newTestDaemon(t)
	daemon := dispatch.NewClient(server.URL, time.Second)

	provider := providerStub{token: "token-2", subject: &models.Subject{ID: "uid-2", DisplayName: "Grace"}}
	if err := pushAuthState(context.Background(), daemon, provider); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := store.Get(context.Background())
	if stored == nil || stored.Subject.ID != "uid-2" {
		t.Fatalf("unexpected credential %+v", stored)
	}

	if err := pushSignedOut(context.Background(), daemon); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored, _ := store.Get(context.Background()); stored != nil {
		t.Fatalf("expected cleared store, got %+v", stored)
	}
}

func TestPushAuthStateProviderFailure(t *testing.T) {
	daemon := dispatch.NewClient("http://127.0.0.1:1", time.Second)
	provider := providerStub{err: errors.New("signed out")}
	if err := pushAuthState(context.Background(), daemon, provider); err == nil {
		t.Fatal("expected provider error")
	}
}

func TestRunMigrationsValidation(t *testing.T) {
	isolateEnv(t)

	if err := runMigrations(context.Background(), []string{"down"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected down to be rejected")
	}
	if err := runMigrations(context.Background(), []string{"sideways"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected unknown command error")
	}
	err := runMigrations(context.Background(), []string{"status"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "database URL is required") {
		t.Fatalf("unexpected error %v", err)
	}
}
