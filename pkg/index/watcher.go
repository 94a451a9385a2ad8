package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last write before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a Holder from a Source whenever the terms file changes.
// The parent directory is watched so that editors which replace the file
// through a rename are picked up too.
type Watcher struct {
	holder   *Holder
	source   Source
	path     string
	debounce time.Duration

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	timerMu sync.Mutex
	timer   *time.Timer

	onReload func(*Snapshot, error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnReload registers fn to be called after every reload attempt.
func WithOnReload(fn func(*Snapshot, error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher starts watching path.
func NewWatcher(h *Holder, src Source, path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		holder:   h,
		source:   src,
		path:     abs,
		debounce: DefaultDebounce,
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.wg.Add(1)
	go w.eventLoop()
	return w, nil
}

// Stop ends the watch. Pending reloads are cancelled.
func (w *Watcher) Stop() error {
	w.cancel()
	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()
	err := w.watcher.Close()
	w.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("terms watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	snap, err := w.holder.Refresh(w.ctx, w.source)
	if err != nil {
		slog.Error("failed to reload terms, keeping previous index", "path", w.path, "version", snap.Version(), "error", err)
	}
	if w.onReload != nil {
		w.onReload(snap, err)
	}
}
