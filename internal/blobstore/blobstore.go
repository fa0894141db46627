// Package blobstore provides key-addressed byte storage for raw snapshot
// files, backed either by a local directory or an S3 bucket.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blobstore: key not found")

// Store abstracts list/get/put/delete over a partition prefix.
// Keys are partition-relative filenames, e.g. "day=20231101/000000Z.json.gz".
type Store interface {
	// List returns the keys under prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get returns the raw bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores data verbatim under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error
	// DeleteAll removes every object under prefix. Missing prefixes are not
	// an error.
	DeleteAll(ctx context.Context, prefix string) error
}

// FS is a Store backed by a local directory.
type FS struct {
	root string
}

// NewFS creates a directory-backed store rooted at root.
func NewFS(root string) *FS {
	return &FS{root: root}
}

func (f *FS) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// List returns the file names under prefix, sorted ascending.
func (f *FS) List(ctx context.Context, prefix string) ([]string, error) {
	dir := f.path(prefix)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		keys = append(keys, prefix+"/"+e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

// Get reads the bytes stored under key.
func (f *FS) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Put writes data under key, creating parent directories as needed.
func (f *FS) Put(ctx context.Context, key string, data []byte) error {
	path := f.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes every file under prefix.
func (f *FS) DeleteAll(ctx context.Context, prefix string) error {
	dir := f.path(prefix)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", prefix, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("delete %s: %w", prefix, err)
		}
	}
	return nil
}
