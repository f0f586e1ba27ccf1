// Package cache persists the synced puzzle list as a single JSON file.
//
// The file is a key-sorted, two-space indented JSON array ordered by date.
// External tools read it directly, so the encoding is deterministic: syncing
// an unchanged remote store twice produces identical bytes.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/natefinch/atomic"

	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// Cache is the local puzzle cache file plus the bundled default it is seeded
// from.
type Cache struct {
	path        string
	defaultPath string
}

// New creates a cache at path. defaultPath is a read-only dataset used to
// seed path and as a fallback while path does not exist; it may be empty.
func New(path, defaultPath string) *Cache {
	return &Cache{path: path, defaultPath: defaultPath}
}

// Path returns the writable cache location.
func (c *Cache) Path() string { return c.path }

// Seed initialises the writable cache from the bundled default. It never
// overwrites an existing cache. With no default available an empty list is
// written so reads work before the first sync. Reports whether it wrote.
func (c *Cache) Seed() (bool, error) {
	if _, err := os.Stat(c.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat cache %s: %w", c.path, err)
	}

	data := []byte("[]\n")
	if c.defaultPath != "" {
		b, err := os.ReadFile(c.defaultPath)
		switch {
		case err == nil:
			data = b
		case !errors.Is(err, os.ErrNotExist):
			return false, fmt.Errorf("read default cache %s: %w", c.defaultPath, err)
		}
	}

	if err := c.write(data); err != nil {
		return false, err
	}
	return true, nil
}

// Load reads and validates the cache. Parse or shape failures wrap
// puzzle.ErrCorruptCache.
func (c *Cache) Load() ([]puzzle.Record, error) {
	data, err := c.Bytes()
	if err != nil {
		return nil, err
	}
	records, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load cache %s: %w", c.path, err)
	}
	return records, nil
}

// Bytes returns the raw cache file, falling back to the bundled default
// while the writable cache has not been created.
func (c *Cache) Bytes() ([]byte, error) {
	data, err := os.ReadFile(c.path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) || c.defaultPath == "" {
		return nil, fmt.Errorf("read cache %s: %w", c.path, err)
	}
	data, err = os.ReadFile(c.defaultPath)
	if err != nil {
		return nil, fmt.Errorf("read default cache %s: %w", c.defaultPath, err)
	}
	return data, nil
}

// ModTime reports when the cache was last written, using the bundled default
// while the writable cache has not been created.
func (c *Cache) ModTime() (time.Time, error) {
	info, err := os.Stat(c.path)
	if errors.Is(err, os.ErrNotExist) && c.defaultPath != "" {
		info, err = os.Stat(c.defaultPath)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("stat cache %s: %w", c.path, err)
	}
	return info.ModTime(), nil
}

// Save replaces the cache with records. Readers see either the old or the
// new file, never a partial write.
func (c *Cache) Save(records []puzzle.Record) error {
	data, err := Encode(records)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	return c.write(data)
}

func (c *Cache) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := atomic.WriteFile(c.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write cache %s: %w", c.path, err)
	}
	// atomic.WriteFile leaves new files at the temp file's 0600.
	if err := os.Chmod(c.path, 0o644); err != nil {
		return fmt.Errorf("chmod cache %s: %w", c.path, err)
	}
	return nil
}

// Encode renders records in the cache file format.
func Encode(records []puzzle.Record) ([]byte, error) {
	if records == nil {
		records = []puzzle.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses cache file content and checks every record.
func Decode(data []byte) ([]puzzle.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: not a JSON array", puzzle.ErrCorruptCache)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var records []puzzle.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", puzzle.ErrCorruptCache, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after array", puzzle.ErrCorruptCache)
	}

	seen := make(map[string]bool, len(records))
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", puzzle.ErrCorruptCache, i, err)
		}
		if seen[records[i].ID] {
			return nil, fmt.Errorf("%w: duplicate id %s", puzzle.ErrCorruptCache, records[i].ID)
		}
		seen[records[i].ID] = true
	}
	if records == nil {
		records = []puzzle.Record{}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date < records[j].Date
	})
	return records, nil
}
