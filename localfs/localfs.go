// Package localfs provides local-filesystem implementations of the picker's
// cache and metadata resolution ports, so the library is usable without a
// host platform supplying its own.
package localfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	filepicker "github.com/iNomNom/FilePicker"
)

// Cache stores transient files under a single directory.
type Cache struct {
	dir string
	log *slog.Logger
}

// NewCache creates a cache rooted at dir, creating it if needed. An empty
// dir uses a fresh directory under the system temp root.
func NewCache(dir string, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir == "" {
		d, err := os.MkdirTemp("", "filepicker-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		dir = d
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &Cache{dir: dir, log: log}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// CreateTemp creates a fresh file in the cache and returns its path.
func (c *Cache) CreateTemp(suffix string) (string, error) {
	f, err := os.CreateTemp(c.dir, "pick_*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file %s: %w", path, err)
	}
	return path, nil
}

// Remove deletes the file, reporting whether it is gone. A file that never
// existed counts as gone.
func (c *Cache) Remove(path string) bool {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return true
		}
		c.log.Warn("failed to delete cache file", "path", path, "error", err)
		return false
	}
	return true
}

// Resolver resolves path handles against the local filesystem. The declared
// type is sniffed from content when possible.
type Resolver struct {
	log *slog.Logger
}

func NewResolver(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{log: log}
}

// Resolve stats the path behind the handle and sniffs its content type.
// A missing file is unusable; a failed sniff just leaves the type absent.
func (r *Resolver) Resolve(ctx context.Context, h filepicker.Handle) (filepicker.Metadata, error) {
	path := string(h)
	info, err := os.Stat(path)
	if err != nil {
		return filepicker.Metadata{Size: filepicker.SizeUnknown}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	md := filepicker.Metadata{
		Name: filepath.Base(path),
		Size: info.Size(),
	}
	if mt, err := mimetype.DetectFile(path); err == nil {
		md.TypeTag = mt.String()
	} else {
		r.log.Warn("content type sniff failed", "path", path, "error", err)
	}
	return md, nil
}
