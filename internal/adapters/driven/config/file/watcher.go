package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/exportrag/internal/logger"
)

// DefaultDebounce coalesces bursts of editor writes into one reload.
const DefaultDebounce = 200 * time.Millisecond

// Reloader is anything that can drop cached state, such as PromptStore
// and SchemaStore.
type Reloader interface {
	Reload()
}

// Watcher reloads stores when files in their directories change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	targets map[string][]Reloader
}

// NewWatcher creates a watcher. Call Watch for each directory, then Run.
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  w,
		debounce: debounce,
		targets:  make(map[string][]Reloader),
	}, nil
}

// Watch registers dir and the stores to reload when it changes.
// The directory is created if it does not exist.
func (w *Watcher) Watch(dir string, stores ...Reloader) error {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create watched directory: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.targets[dir]; !ok {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.targets[dir] = append(w.targets[dir], stores...)
	return nil
}

// Run dispatches reloads until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			pending[filepath.Dir(event.Name)] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher: %v", err)

		case <-timer.C:
			for dir := range pending {
				w.reload(dir)
				delete(pending, dir)
			}
		}
	}
}

func (w *Watcher) reload(dir string) {
	w.mu.Lock()
	stores := append([]Reloader(nil), w.targets[dir]...)
	w.mu.Unlock()

	logger.Debug("config watcher: reloading %d store(s) for %s", len(stores), dir)
	for _, s := range stores {
		s.Reload()
	}
}

// relevant ignores chmod events and editor swap files.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}
	return true
}
