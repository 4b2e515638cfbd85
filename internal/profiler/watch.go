package profiler

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"replicurse/internal/logging"
)

// Watcher attaches best-effort fsnotify watches to profiled directories so
// a change invalidates the cache entry before cache_max_age would have
// expired it on its own. Watch failures are logged and otherwise ignored:
// the age-bound eviction in Cache is the source of truth, this is purely
// an optimization to shrink the staleness window.
type Watcher struct {
	cache   *Cache
	watcher *fsnotify.Watcher
	log     *logging.Logger
	watched map[string]bool
}

// NewWatcher starts the underlying fsnotify watcher and its event-draining
// goroutine. Call Close when the run ends.
func NewWatcher(cache *Cache, log *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{cache: cache, watcher: fw, log: log, watched: make(map[string]bool)}
	go w.loop()
	return w, nil
}

// Attach starts watching path, if not already watched. Errors are logged
// rather than returned: a failed watch means the directory falls back to
// pure age-bound staleness, which is always correct, just less prompt.
func (w *Watcher) Attach(path string) {
	key := normalizeKey(path)
	if w.watched[key] {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		if w.log != nil {
			w.log.Debugf("profiler watch: could not watch %s: %v", path, err)
		}
		return
	}
	w.watched[key] = true
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				// The event fires on the entry that changed, not on the
				// watched directory itself, so invalidate both: a new
				// file invalidates its parent directory's aggregate
				// totals, and a renamed/removed watched directory
				// invalidates its own entry.
				w.cache.Invalidate(event.Name)
				w.cache.Invalidate(filepath.Dir(event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Debugf("profiler watch error: %v", err)
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
