// Package reload watches configuration files and invokes a callback when
// they change.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces bursts of writes from editors.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before the callback runs.
	Debounce time.Duration
	Logger   *zap.Logger
}

// Watcher calls OnChange after any watched file is written, created or
// renamed into place. Directories are watched so atomic saves are seen.
type Watcher struct {
	files    map[string]bool
	onChange func() error
	opts     Options
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	reloads int
}

// New creates a watcher over files. Empty paths are ignored.
func New(files []string, onChange func() error, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		files:    make(map[string]bool),
		onChange: onChange,
		opts:     opts,
		watcher:  watcher,
	}

	dirs := make(map[string]bool)
	for _, f := range files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			timerC = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("config watcher error", zap.Error(err))
		case <-timerC:
			timerC = nil
			w.fire()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !w.files[filepath.Clean(event.Name)] {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	if err := w.onChange(); err != nil {
		w.opts.Logger.Error("config reload failed, keeping previous configuration", zap.Error(err))
		return
	}
	w.opts.Logger.Info("configuration reloaded")
}

// Reloads returns how many times the callback ran.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}
