package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reports a new revision each time the catalogue file changes. The
// returned channel holds at most one pending revision, the newest, and is
// closed when ctx is done.
//
// The parent directory is watched rather than the file so that editors that
// replace the file on save are still seen.
func (c *Catalog) Watch(ctx context.Context) (<-chan int, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	out := make(chan int, 1)
	go c.processEvents(ctx, watcher, out)

	c.logger.Debug("started watching catalogue")
	return out, nil
}

func (c *Catalog) processEvents(ctx context.Context, watcher *fsnotify.Watcher, out chan int) {
	defer close(out)
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(c.path)

	// Debounce bursts of events from a single save.
	var settle <-chan time.Time
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			c.logger.Debugf("catalogue changed (%s)", event.Op)

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(c.debounce)
			settle = timer.C

		case <-settle:
			settle = nil
			rev := c.nextRevision()
			select {
			case <-out:
			default:
			}
			out <- rev

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.WithError(err).Error("watcher error")
		}
	}
}

// Revision returns the number of changes observed so far.
func (c *Catalog) Revision() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision
}

func (c *Catalog) nextRevision() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revision++
	return c.revision
}
