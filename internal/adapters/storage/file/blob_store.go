// Package file stores the session state as JSON files on the local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/PabloGalante/engigen-agent/internal/domain"
)

// BlobStore keeps each key in its own file. The default key, the one the
// persistence bridge uses, lives at Path; other keys sit next to it.
type BlobStore struct {
	Path       string
	defaultKey string
}

// NewBlobStore creates a store writing defaultKey to path.
func NewBlobStore(path, defaultKey string) (*BlobStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: creating directory: %w", err)
	}
	return &BlobStore{Path: path, defaultKey: defaultKey}, nil
}

func (s *BlobStore) pathFor(key string) string {
	if key == s.defaultKey {
		return s.Path
	}
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, key)
	return filepath.Join(filepath.Dir(s.Path), safe+".json")
}

func (s *BlobStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, fmt.Errorf("file store: reading %s: %w", key, err)
	}
	return data, nil
}

func (s *BlobStore) Put(_ context.Context, key string, data []byte) error {
	if err := AtomicWriteFile(s.pathFor(key), data, 0o600); err != nil {
		return fmt.Errorf("file store: writing %s: %w", key, err)
	}
	return nil
}

// AtomicWriteFile writes to a temp file in the same directory, syncs it and
// renames it over path, so readers see either the old or the new content.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmp := f.Name()

	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	ok = true
	return nil
}
