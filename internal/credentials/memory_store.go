package credentials

import (
	"context"
	"sync"

	"github.com/vidfriends/genbridge/internal/models"
)

// NewMemoryStore returns a Store that keeps the credential in process memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// MemoryStore implements Store for tests and throwaway daemons.
type MemoryStore struct {
	mu         sync.RWMutex
	credential *models.Credential
}

// Get returns a copy of the stored credential.
func (s *MemoryStore) Get(_ context.Context) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.credential == nil {
		return nil, nil
	}
	c := *s.credential
	return &c, nil
}

// Set replaces the stored credential.
func (s *MemoryStore) Set(_ context.Context, credential models.Credential) error {
	if err := validate(credential); err != nil {
		return err
	}
	s.mu.Lock()
	s.credential = &credential
	s.mu.Unlock()
	return nil
}

// Clear removes the stored credential.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.credential = nil
	s.mu.Unlock()
	return nil
}
