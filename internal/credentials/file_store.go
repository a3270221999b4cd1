package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vidfriends/genbridge/internal/models"
)

// FileStore persists the credential as a JSON document on local disk. Writes go
// to a temporary file that is renamed over the document, so readers see either
// the previous credential or the new one.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore prepares a FileStore at path, creating the parent directory.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("file store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("file store: create directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the location of the credential document.
func (s *FileStore) Path() string {
	return s.path
}

// Get loads the credential, returning nil when the document does not exist.
func (s *FileStore) Get(ctx context.Context) (*models.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(s.path)
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("file store: read: %w", err)
	}

	var credential models.Credential
	if err := json.Unmarshal(data, &credential); err != nil {
		return nil, fmt.Errorf("file store: decode: %w", err)
	}
	if !credential.Complete() {
		return nil, nil
	}
	return &credential, nil
}

// Set writes the credential atomically.
func (s *FileStore) Set(ctx context.Context, credential models.Credential) error {
	if err := validate(credential); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credential-*.json")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}

// Clear deletes the credential document.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file store: remove: %w", err)
	}
	return nil
}
