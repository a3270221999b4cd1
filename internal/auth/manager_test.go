package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vidfriends/genbridge/internal/credentials"
	"github.com/vidfriends/genbridge/internal/models"
	"github.com/vidfriends/genbridge/internal/outcome"
	"github.com/vidfriends/genbridge/internal/refresh"
)

type channelStub struct {
	credential models.Credential
	err        error
	calls      int
}

func (c *channelStub) RequestFreshCredential(context.Context) (models.Credential, error) {
	c.calls++
	return c.credential, c.err
}

type failingStore struct {
	credentials.Store
	setErr error
}

func (s failingStore) Set(context.Context, models.Credential) error {
	return s.setErr
}

var subject = models.Subject{ID: "uid-1", DisplayName: "Ada", Email: "ada@example.com"}

func storedAt(t *testing.T, token string, issuedAt time.Time) *credentials.MemoryStore {
	t.Helper()
	store := credentials.NewMemoryStore()
	if err := store.Set(context.Background(), models.Credential{Token: token, IssuedAt: issuedAt, Subject: subject}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func TestAcquireRefreshPersistsFreshCredential(t *testing.T) {
	token := strings.Repeat("f", 150)
	store := credentials.NewMemoryStore()
	channel := &channelStub{credential: models.Credential{Token: token, Subject: subject}}

	before := time.Now()
	got, err := NewManager(channel, store).AcquireToken(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got != token {
		t.Fatalf("unexpected token %q", got)
	}

	stored, err := store.Get(context.Background())
	if err != nil || stored == nil {
		t.Fatalf("expected stored credential, got %v %v", stored, err)
	}
	if stored.Token != token {
		t.Fatalf("store holds %q", stored.Token)
	}
	if d := stored.IssuedAt.Sub(before); d < 0 || d > time.Second {
		t.Fatalf("issuedAt not within 1s of the call: %v", d)
	}
}

func TestAcquireUnavailableUsesFreshStoredToken(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	token := strings.Repeat("s", 120)
	store := storedAt(t, token, now)
	channel := &channelStub{err: refresh.ErrChannelUnavailable}

	got, err := NewManager(channel, store).WithNowFunc(func() time.Time { return now }).AcquireToken(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got != token {
		t.Fatalf("expected stored token unchanged, got %q", got)
	}
}

func TestAcquireUnavailableEmptyStore(t *testing.T) {
	channel := &channelStub{err: refresh.ErrChannelUnavailable}
	_, err := NewManager(channel, credentials.NewMemoryStore()).AcquireToken(context.Background())
	if !outcome.Is(err, outcome.KindAuthRequired) {
		t.Fatalf("expected AuthRequired got %v", err)
	}
}

func TestAcquireUnavailableStaleStore(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	store := storedAt(t, strings.Repeat("s", 120), now.Add(-51*time.Minute))
	channel := &channelStub{err: refresh.ErrChannelUnavailable}

	got, err := NewManager(channel, store).WithNowFunc(func() time.Time { return now }).AcquireToken(context.Background())
	if !outcome.Is(err, outcome.KindAuthExpired) {
		t.Fatalf("expected AuthExpired got %v", err)
	}
	if got != "" {
		t.Fatalf("stale token must not be returned, got %q", got)
	}
}

func TestAcquireMalformedFreshTokenFallsBackToStore(t *testing.T) {
	now := time.Now()
	stored := strings.Repeat("s", 120)
	store := storedAt(t, stored, now)
	channel := &channelStub{credential: models.Credential{Token: "short", Subject: subject}}

	got, err := NewManager(channel, store).AcquireToken(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got != stored {
		t.Fatalf("expected stored token, got %q", got)
	}

	current, _ := store.Get(context.Background())
	if current.Token != stored {
		t.Fatal("malformed token must not be persisted")
	}
}

func TestAcquireMalformedFreshTokenWithEmptyStore(t *testing.T) {
	channel := &channelStub{credential: models.Credential{Token: "", Subject: subject}}
	_, err := NewManager(channel, credentials.NewMemoryStore()).AcquireToken(context.Background())
	if !outcome.Is(err, outcome.KindAuthRequired) {
		t.Fatalf("expected AuthRequired got %v", err)
	}
}

func TestAcquireDeniedIgnoresStore(t *testing.T) {
	store := storedAt(t, strings.Repeat("s", 120), time.Now())
	channel := &channelStub{err: refresh.ErrAuthDenied}

	_, err := NewManager(channel, store).AcquireToken(context.Background())
	if !outcome.Is(err, outcome.KindAuthRequired) {
		t.Fatalf("expected AuthRequired got %v", err)
	}
	if !errors.Is(err, refresh.ErrAuthDenied) {
		t.Fatalf("expected denial cause to be preserved, got %v", err)
	}
}

func TestAcquireStoredTokenTooShort(t *testing.T) {
	store := storedAt(t, "short-token", time.Now())
	channel := &channelStub{err: refresh.ErrChannelUnavailable}

	got, err := NewManager(channel, store).AcquireToken(context.Background())
	if !outcome.Is(err, outcome.KindAuthRequired) {
		t.Fatalf("expected AuthRequired got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("short token returned: %q", got)
	}
}

func TestAcquireWithoutChannelUsesStore(t *testing.T) {
	token := strings.Repeat("s", 120)
	store := storedAt(t, token, time.Now())

	got, err := NewManager(nil, store).AcquireToken(context.Background())
	if err != nil || got != token {
		t.Fatalf("expected stored token, got %q %v", got, err)
	}
}

func TestAcquireRefreshSurvivesStoreFailure(t *testing.T) {
	token := strings.Repeat("f", 150)
	store := failingStore{Store: credentials.NewMemoryStore(), setErr: errors.New("disk full")}
	channel := &channelStub{credential: models.Credential{Token: token, Subject: subject}}

	got, err := NewManager(channel, store).Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got.Token != token || got.IssuedAt.IsZero() {
		t.Fatalf("unexpected credential %+v", got)
	}
}

func TestAcquireNeverCaches(t *testing.T) {
	channel := &channelStub{credential: models.Credential{Token: strings.Repeat("f", 150), Subject: subject}}
	manager := NewManager(channel, credentials.NewMemoryStore())

	for i := 0; i < 3; i++ {
		if _, err := manager.AcquireToken(context.Background()); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	if channel.calls != 3 {
		t.Fatalf("expected a refresh per call, got %d", channel.calls)
	}
}

func TestNewManagerPanicsWithoutStore(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewManager(nil, nil)
}
