// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pillumina/PaperFuse/internal/metadata"
)

// Cache stores flattened source text on disk, keyed by normalized paper
// id, with a fixed time-to-live. Entries are owned by the cache alone and
// expire independently of paper lifecycle.
type Cache struct {
	dir string
	ttl time.Duration

	// now is the clock; tests substitute it to exercise expiry.
	now func() time.Time
}

// NewCache opens a cache rooted at dir. Entries older than ttl are
// treated as absent.
func NewCache(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Get returns the cached flattened text for id, or ok=false when the
// entry is missing or expired. Expired entries are removed on read.
func (c *Cache) Get(id string) (text string, ok bool) {
	path := c.entryPath(id)
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if c.now().Sub(info.ModTime()) > c.ttl {
		os.Remove(path)
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Put stores flattened text for id, replacing any existing entry.
func (c *Cache) Put(id, text string) error {
	path := c.entryPath(id)
	tmp, err := os.CreateTemp(c.dir, ".evidence-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.WriteString(text)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache entry: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing cache entry: %w", closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Stats reports entry count and total bytes, counting only live entries.
func (c *Cache) Stats() (entries int, bytes int64, err error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, entry := range dirEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if c.now().Sub(info.ModTime()) > c.ttl {
			continue
		}
		entries++
		bytes += info.Size()
	}
	return entries, bytes, nil
}

// entryPath maps an id to a file path. Slashes in old-style identifiers
// (e.g. "cond-mat/9901001") are flattened so every entry is a single file.
func (c *Cache) entryPath(id string) string {
	name := strings.ReplaceAll(metadata.NormalizeID(id), "/", "_")
	return filepath.Join(c.dir, name+".txt")
}
