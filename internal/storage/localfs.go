package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore keeps uploaded document bytes on the local filesystem, one file
// per storage key. Paths are confined to the base directory.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "./storage"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.baseDir, filepath.Base(key))
}

func (s *LocalStore) Save(_ context.Context, key string, data io.Reader) error {
	f, err := os.Create(s.path(key))
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *LocalStore) Read(_ context.Context, key string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return raw, nil
}
