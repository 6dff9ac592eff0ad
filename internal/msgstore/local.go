package msgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalFileStore stores bodies as files in one directory.
type LocalFileStore struct {
	basePath string
}

// NewLocalFileStore creates the base directory if needed.
func NewLocalFileStore(basePath string) (*LocalFileStore, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("msgstore: create base directory: %w", err)
	}
	return &LocalFileStore{basePath: basePath}, nil
}

// Put writes to a temp file in the same directory and renames it into place.
func (s *LocalFileStore) Put(_ context.Context, ref string, data []byte) error {
	if err := validRef(ref); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.basePath, ".tmp-"+ref+"-*")
	if err != nil {
		return fmt.Errorf("msgstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("msgstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("msgstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.basePath, ref)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("msgstore: rename temp file: %w", err)
	}
	return nil
}

// Get returns ErrNotFound if ref does not exist.
func (s *LocalFileStore) Get(_ context.Context, ref string) ([]byte, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgstore: read file: %w", err)
	}
	return data, nil
}

// Delete is idempotent.
func (s *LocalFileStore) Delete(_ context.Context, ref string) error {
	if err := validRef(ref); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.basePath, ref))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("msgstore: remove file: %w", err)
	}
	return nil
}
