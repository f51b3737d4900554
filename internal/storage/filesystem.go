package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	// tempPattern names in-flight writes; they never parse as badge files.
	tempPattern = ".tmp-*"
)

// FilesystemStorage implements Storage on a flat local directory holding one
// {hex}.svg file per badge.
type FilesystemStorage struct {
	root string
}

// NewFilesystemStorage creates the badge directory if needed.
func NewFilesystemStorage(root string) (*FilesystemStorage, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}

	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}

	return &FilesystemStorage{root: root}, nil
}

// Path returns the file holding the badge stored under key.
func (f *FilesystemStorage) Path(key badge.Key) string {
	return filepath.Join(f.root, key.FileName())
}

// Get reads the badge file. A missing or unreadable file is ErrNotFound.
func (f *FilesystemStorage) Get(ctx context.Context, key badge.Key) ([]byte, error) {
	path := f.Path(key)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	return data, nil
}

// Put writes data to a temporary file in the badge directory and renames it
// over the badge file, so readers see either the old or the new badge.
func (f *FilesystemStorage) Put(ctx context.Context, key badge.Key, data []byte) error {
	path := f.Path(key)

	tmp, err := os.CreateTemp(f.root, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	// CreateTemp uses 0600; badges are public
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move badge into place at %s: %w", path, err)
	}
	committed = true

	return nil
}

// Delete removes the badge file. A missing file is not an error.
func (f *FilesystemStorage) Delete(ctx context.Context, key badge.Key) error {
	path := f.Path(key)

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete badge file %s: %w", path, err)
	}

	if _, err := os.Lstat(path); !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("badge file %s still exists after delete", path)
	}

	return nil
}

// Exists reports whether a regular badge file exists for key.
func (f *FilesystemStorage) Exists(ctx context.Context, key badge.Key) (bool, error) {
	info, err := os.Stat(f.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat badge file: %w", err)
	}

	return info.Mode().IsRegular(), nil
}

// List enumerates the badge directory. Temporary files, subdirectories and
// files whose names are not {hex}.svg are skipped.
func (f *FilesystemStorage) List(ctx context.Context) ([]badge.Key, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage root %s: %w", f.root, err)
	}

	var keys []badge.Key
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if key, ok := badge.ParseFileName(entry.Name()); ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close is a no-op; the filesystem backend holds no resources.
func (f *FilesystemStorage) Close() error {
	return nil
}
