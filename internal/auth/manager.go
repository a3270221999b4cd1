package auth

import (
	"context"
	"errors"
	"time"

	"github.com/vidfriends/genbridge/internal/credentials"
	"github.com/vidfriends/genbridge/internal/logging"
	"github.com/vidfriends/genbridge/internal/models"
	"github.com/vidfriends/genbridge/internal/outcome"
	"github.com/vidfriends/genbridge/internal/refresh"
)

// RefreshChannel mints a fresh credential through the agent.
type RefreshChannel interface {
	RequestFreshCredential(ctx context.Context) (models.Credential, error)
}

// Decision records which row of the acquisition table produced a result.
type Decision string

const (
	DecisionRefreshed     Decision = "refreshed"
	DecisionStoredFresh   Decision = "stored-fresh"
	DecisionStoredStale   Decision = "stored-stale"
	DecisionStoredMissing Decision = "stored-missing"
	DecisionStoredInvalid Decision = "stored-invalid"
	DecisionRejected      Decision = "rejected"
)

// Manager acquires a bearer credential for every outbound request. It asks the
// agent first and only falls back to the stored credential when the agent
// cannot be reached. Nothing is cached between calls.
type Manager struct {
	channel RefreshChannel
	store   credentials.Store
	now     func() time.Time
}

// NewManager constructs a Manager over the refresh channel and credential store.
func NewManager(channel RefreshChannel, store credentials.Store) *Manager {
	if store == nil {
		panic("auth: credential store must not be nil")
	}
	return &Manager{channel: channel, store: store, now: time.Now}
}

// WithNowFunc overrides the clock, for tests.
func (m *Manager) WithNowFunc(now func() time.Time) *Manager {
	m.now = now
	return m
}

// AcquireToken returns only the bearer token of Acquire.
func (m *Manager) AcquireToken(ctx context.Context) (string, error) {
	credential, err := m.Acquire(ctx)
	if err != nil {
		return "", err
	}
	return credential.Token, nil
}

// Acquire returns a usable credential or an AuthRequired/AuthExpired failure.
func (m *Manager) Acquire(ctx context.Context) (models.Credential, error) {
	ctx, span := logging.StartSpan(ctx, "acquire_token")
	defer span.End()

	credential, decision, err := m.decide(ctx)
	logging.FromContext(ctx).Info("token acquisition", "decision", string(decision), "ok", err == nil)
	return credential, err
}

func (m *Manager) decide(ctx context.Context) (models.Credential, Decision, error) {
	logger := logging.FromContext(ctx)

	var fresh models.Credential
	var err error
	if m.channel == nil {
		err = refresh.ErrChannelUnavailable
	} else {
		fresh, err = m.channel.RequestFreshCredential(ctx)
	}

	switch {
	case err == nil:
		if credentials.ValidTokenShape(fresh.Token) {
			fresh.IssuedAt = m.now().UTC()
			if storeErr := m.store.Set(ctx, fresh); storeErr != nil {
				logger.Warn("persist refreshed credential", "error", storeErr)
			}
			return fresh, DecisionRefreshed, nil
		}
		logger.Warn("refresh returned malformed token, using stored credential", "length", len(fresh.Token))
	case errors.Is(err, refresh.ErrChannelUnavailable):
		logger.Debug("refresh channel unavailable, using stored credential", "error", err)
	default:
		return models.Credential{}, DecisionRejected, outcome.AuthRequired(err)
	}

	return m.fromStore(ctx)
}

func (m *Manager) fromStore(ctx context.Context) (models.Credential, Decision, error) {
	stored, err := m.store.Get(ctx)
	if err != nil {
		return models.Credential{}, DecisionStoredMissing, outcome.AuthRequired(err)
	}
	if stored == nil {
		return models.Credential{}, DecisionStoredMissing, outcome.AuthRequired(nil)
	}
	if credentials.IsLikelyExpired(stored.IssuedAt, m.now()) {
		return models.Credential{}, DecisionStoredStale, outcome.AuthExpired()
	}
	if !credentials.ValidTokenShape(stored.Token) {
		return models.Credential{}, DecisionStoredInvalid, outcome.AuthRequired(nil)
	}
	return *stored, DecisionStoredFresh, nil
}
