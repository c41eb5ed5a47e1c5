package catalog

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// Watch starts an fsnotify watcher on the catalog file's directory and
// triggers EnsureLoaded on every write/rename event, until ctx is done. This
// is the push-side complement to EnsureLoaded's pull-side mtime check: a
// long-running process picks up a catalog edit without waiting for the next
// incidental lookup.
func (c *Catalog) Watch(ctx context.Context, log logr.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(c.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.EnsureLoaded(); err != nil {
					log.Error(err, "device catalog reload failed", "path", c.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error(err, "device catalog watcher error", "path", c.path)
			}
		}
	}()

	return nil
}
