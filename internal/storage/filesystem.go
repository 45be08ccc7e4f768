package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

var _ Store = (*FilesystemStore)(nil)
var _ Taker = (*FilesystemStore)(nil)

// FilesystemStore keeps one file per key below basePath. Key names are hex
// encoded so provider-prefixed keys like "spotify:access_token" stay valid
// file names on every platform.
type FilesystemStore struct {
	basePath string
	seq      atomic.Uint64
}

// NewFilesystemStore creates the base directory when needed
func NewFilesystemStore(basePath string) (*FilesystemStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path is required")
	}
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create base path %s: %w", basePath, err)
	}
	return &FilesystemStore{basePath: basePath}, nil
}

func (f *FilesystemStore) path(key string) string {
	return filepath.Join(f.basePath, hex.EncodeToString([]byte(key))+".blob")
}

func (f *FilesystemStore) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes to a temporary file and renames it over the target, so
// readers never observe a partially written value.
func (f *FilesystemStore) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	tmp, err := os.CreateTemp(f.basePath, ".set-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (f *FilesystemStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Take renames the file out of the way before reading it. Rename is atomic
// on a single filesystem, so only one caller can win the value.
func (f *FilesystemStore) Take(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	claimed := filepath.Join(f.basePath, fmt.Sprintf(".take-%d-%d", os.Getpid(), f.seq.Add(1)))
	if err := os.Rename(f.path(key), claimed); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	defer os.Remove(claimed)

	data, err := os.ReadFile(claimed)
	if err != nil {
		return "", false, fmt.Errorf("failed to read claimed %s: %w", key, err)
	}
	return string(data), true, nil
}
