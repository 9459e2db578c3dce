package launcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultDebounce batches rapid saves into a single restart.
const defaultDebounce = 500 * time.Millisecond

// Watcher watches the gateway source tree for changes and reports them as
// coalesced restart signals. Only .py files count; editor noise (chmod,
// swap files) is ignored.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	pending     map[string]time.Time
	debounceDur time.Duration
	changes     chan struct{}
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	logger      *zap.Logger
}

// NewWatcher creates a Watcher for the given source directory.
func NewWatcher(dir string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	return &Watcher{
		watcher:     fsw,
		dir:         dir,
		pending:     make(map[string]time.Time),
		debounceDur: debounce,
		changes:     make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
	}, nil
}

// Start begins watching the directory tree. Non-blocking; the event loop
// runs in a goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.dir); err != nil {
		w.logger.Warn("reload watcher could not watch source dir",
			zap.String("dir", w.dir), zap.Error(err))
	} else {
		w.logger.Debug("reload watcher started", zap.String("dir", w.dir))
	}

	go w.run(ctx)
	return nil
}

// Changes delivers one signal per settled batch of source changes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("error closing reload watcher", zap.Error(err))
	}
}

// addTree watches dir and every subdirectory beneath it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// run is the watcher event loop.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("reload watcher error", zap.Error(err))

		case <-ticker.C:
			w.flushSettled()
		}
	}
}

// handleEvent records relevant filesystem events for debouncing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// New subdirectories join the watch so nested modules reload too.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Debug("could not watch new directory",
					zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".py") {
		return
	}

	w.logger.Debug("source change observed",
		zap.String("path", event.Name), zap.Stringer("op", event.Op))

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// flushSettled emits a single change signal once every pending path has
// been quiet for the debounce window.
func (w *Watcher) flushSettled() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	now := time.Now()
	for _, last := range w.pending {
		if now.Sub(last) < w.debounceDur {
			w.mu.Unlock()
			return
		}
	}
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	select {
	case w.changes <- struct{}{}:
	default:
		// a restart is already queued
	}
}
