// Package watcher turns repository changes made outside the engine into cache
// invalidations. The fsnotify watcher coalesces bursts of file events; the ticker
// is the fallback when file notifications are turned off.
package watcher

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultDebounce is the window in which file events are coalesced
	DefaultDebounce = 200 * time.Millisecond
	// DefaultTickInterval is the refresh period when file notifications are off
	DefaultTickInterval = 5 * time.Second
)

// Invalidator receives one call per coalesced burst of changes
type Invalidator interface {
	InvalidateAll(reason string)
}

// Config selects and tunes the change source
type Config struct {
	Enabled      bool
	Debounce     time.Duration
	TickInterval time.Duration
}

// ignoredDirs never produce events worth a refresh
var ignoredDirs = []string{
	filepath.Join(".git", "objects"),
	filepath.Join(".git", "logs"),
}

// Start watches root with fsnotify when cfg.Enabled is set and falls back to a
// ticker otherwise
func Start(root string, target Invalidator, cfg Config, logger *slog.Logger) (io.Closer, error) {
	if !cfg.Enabled {
		return NewTicker(target, cfg.TickInterval), nil
	}
	return New(root, target, cfg.Debounce, logger)
}

// Watcher watches a worktree recursively
type Watcher struct {
	root     string
	target   Invalidator
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	timer  *time.Timer
	closed bool

	events atomic.Int64
	fired  atomic.Int64

	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// New starts watching root and every directory below it
func New(root string, target Invalidator, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     abs,
		target:   target,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
		closeCh:  make(chan struct{}),
	}
	if err := w.addRecursive(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, dir := range ignoredDirs {
		if rel == dir || strings.HasPrefix(rel, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addRecursive(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish mid-walk.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Debug("watch failed", slog.String("path", p), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}
	w.events.Add(1)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.timer != nil {
		return
	}
	// The first event opens the window; everything until it closes is one refresh.
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.timer = nil
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	w.fired.Add(1)
	w.target.InvalidateAll("files changed")
}

// Events returns how many relevant file events were seen
func (w *Watcher) Events() int64 {
	return w.events.Load()
}

// Fired returns how many invalidations were issued
func (w *Watcher) Fired() int64 {
	return w.fired.Load()
}

// Close stops watching. A pending burst is dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.fsw.Close()
}

// Ticker invalidates on a fixed period
type Ticker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewTicker starts invalidating target every interval
func NewTicker(target Invalidator, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	t := &Ticker{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				target.InvalidateAll("tick")
			}
		}
	}()
	return t
}

// Close stops the ticker and waits for its goroutine
func (t *Ticker) Close() error {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
	t.wg.Wait()
	return nil
}
