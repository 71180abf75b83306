package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Digest returns the content address of a logical cache key.
func Digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// FileCache stores each entry as <root>/<name>/<sha256(key)>.<ext>.
// It is safe for concurrent use: writes land via rename, so readers never
// observe a partial file, and concurrent writers of one key write identical
// bytes.
type FileCache struct {
	dir string
	ext string
}

// NewFileCache returns a cache scoped to one provider name under root.
// The directory is created on first write.
func NewFileCache(root, name, ext string) *FileCache {
	if ext == "" {
		ext = "json"
	}
	return &FileCache{dir: filepath.Join(root, filepath.FromSlash(name)), ext: ext}
}

// Dir returns the directory holding this cache's files.
func (c *FileCache) Dir() string { return c.dir }

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, Digest(key)+"."+c.ext)
}

func (c *FileCache) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(c.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("cache: stat %s: %w", c.path(key), err)
}

func (c *FileCache) Read(_ context.Context, key string) ([]byte, error) {
	body, err := os.ReadFile(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read %s: %w", c.path(key), err)
	}
	return body, nil
}

func (c *FileCache) Write(_ context.Context, key string, body []byte) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("cache: create dir %s: %w", c.dir, err)
	}

	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: rename into place: %w", err)
	}
	return nil
}
