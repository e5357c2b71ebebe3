package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leafsync/server/internal/models"
)

// KeyValueStore is the local persistence collaborator: opaque keys mapped
// to full JSON payloads, rewritten whole on every mutation.
type KeyValueStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// FileKeyValueStore persists each key as a file in a directory. Writes go
// through a temp file and rename so a reader never observes a partial value.
type FileKeyValueStore struct {
	dir string
}

// NewFileKeyValueStore creates a new FileKeyValueStore
func NewFileKeyValueStore(dir string) (*FileKeyValueStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("store directory cannot be empty")
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, err
	}

	return &FileKeyValueStore{dir: absDir}, nil
}

// Get returns the value for a key, or nil if the key has never been set.
// Read failures are reported as ErrPersistenceFailure.
func (s *FileKeyValueStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistenceFailure, err)
	}
	return data, nil
}

// Set writes the full value for a key atomically. Write failures are
// reported as ErrPersistenceFailure.
func (s *FileKeyValueStore) Set(key string, value []byte) error {
	path := s.pathFor(key)

	tmp, err := os.CreateTemp(s.dir, ".kv-*")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailure, err)
	}

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailure, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailure, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailure, err)
	}
	return nil
}

// Delete removes a key; missing keys are not an error
func (s *FileKeyValueStore) Delete(key string) error {
	err := os.Remove(s.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailure, err)
	}
	return nil
}

// pathFor maps a namespaced key to a safe filename
func (s *FileKeyValueStore) pathFor(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
	return filepath.Join(s.dir, name+".json")
}
