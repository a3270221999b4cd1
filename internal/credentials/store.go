package credentials

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/vidfriends/genbridge/internal/models"
)

var (
	// ErrIncompleteCredential indicates a write was attempted without a token, timestamp or subject.
	ErrIncompleteCredential = errors.New("credential is incomplete")
)

// MinTokenLength is the shortest bearer token accepted as well-formed.
const MinTokenLength = 100

// Store persists the latest credential. Implementations must make Set a single
// atomic operation so no reader ever observes a partially written credential.
type Store interface {
	// Get returns nil when no credential is stored.
	Get(ctx context.Context) (*models.Credential, error)
	Set(ctx context.Context, credential models.Credential) error
	Clear(ctx context.Context) error
}

// ValidTokenShape reports whether token looks like a usable bearer token.
func ValidTokenShape(token string) bool {
	if strings.TrimSpace(token) == "" || len(token) < MinTokenLength {
		return false
	}
	return strings.IndexFunc(token, unicode.IsSpace) < 0
}

func validate(credential models.Credential) error {
	if !credential.Complete() {
		return ErrIncompleteCredential
	}
	return nil
}
