package cache

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives the outcome of re-reading the cache after it changed on
// disk: the record count, or the load error (typically ErrCorruptCache).
type ChangeFunc func(records int, err error)

// Watch calls onChange whenever the cache file is created, written or
// replaced, until ctx is cancelled. The parent directory is watched because
// atomic replacement swaps the file's inode.
func (c *Cache) Watch(ctx context.Context, onChange ChangeFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create cache watcher: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch cache dir %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(c.path)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				records, err := c.Load()
				onChange(len(records), err)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				onChange(0, fmt.Errorf("cache watcher: %w", err))
			}
		}
	}()

	return nil
}
