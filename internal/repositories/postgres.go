package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vidfriends/genbridge/internal/credentials"
	"github.com/vidfriends/genbridge/internal/db"
	"github.com/vidfriends/genbridge/internal/models"
)

// DefaultSlot names the row holding the daemon's credential.
const DefaultSlot = "default"

// PostgresCredentialStore persists the credential as a single row in PostgreSQL.
type PostgresCredentialStore struct {
	pool db.Pool
	slot string
}

// NewPostgresCredentialStore constructs a credential store backed by PostgreSQL.
func NewPostgresCredentialStore(pool db.Pool, slot string) *PostgresCredentialStore {
	if strings.TrimSpace(slot) == "" {
		slot = DefaultSlot
	}
	return &PostgresCredentialStore{pool: pool, slot: slot}
}

// Get loads the credential, returning nil when none is stored.
func (s *PostgresCredentialStore) Get(ctx context.Context) (*models.Credential, error) {
	credential, err := s.find(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &credential, nil
}

func (s *PostgresCredentialStore) find(ctx context.Context) (models.Credential, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.Credential{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT token, issued_at, subject_id, display_name, email
        FROM credentials
        WHERE slot = $1
    `, s.slot)

	var credential models.Credential
	if err := row.Scan(&credential.Token, &credential.IssuedAt, &credential.Subject.ID, &credential.Subject.DisplayName, &credential.Subject.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Credential{}, ErrNotFound
		}
		return models.Credential{}, fmt.Errorf("select credential: %w", err)
	}

	credential.IssuedAt = credential.IssuedAt.UTC()
	return credential, nil
}

// Set replaces the stored credential in a single upsert.
func (s *PostgresCredentialStore) Set(ctx context.Context, credential models.Credential) error {
	if !credential.Complete() {
		return credentials.ErrIncompleteCredential
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO credentials (slot, token, issued_at, subject_id, display_name, email, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, now())
        ON CONFLICT (slot)
        DO UPDATE SET token = EXCLUDED.token,
                      issued_at = EXCLUDED.issued_at,
                      subject_id = EXCLUDED.subject_id,
                      display_name = EXCLUDED.display_name,
                      email = EXCLUDED.email,
                      updated_at = EXCLUDED.updated_at
    `, s.slot, credential.Token, credential.IssuedAt.UTC(), credential.Subject.ID, credential.Subject.DisplayName, credential.Subject.Email)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}

	return nil
}

// Clear removes the stored credential. Clearing an empty store is not an error.
func (s *PostgresCredentialStore) Clear(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `DELETE FROM credentials WHERE slot = $1`, s.slot); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

var _ credentials.Store = (*PostgresCredentialStore)(nil)
