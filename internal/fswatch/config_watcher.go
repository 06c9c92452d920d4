package fswatch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrConfigWatcherClosed is returned by ConfigWatcher methods once Stop
// has been called.
var ErrConfigWatcherClosed = errors.New("fswatch: config watcher closed")

const configDebounceTimeout = 300 * time.Millisecond

// ConfigWatcher watches a single file (the daemon's config file) for
// writes, debouncing bursts the same way the main Watcher does, and
// invokes onChange once per settled burst. It is deliberately a
// separate, smaller instance from Watcher: the config file lives outside
// any collection and must keep running even while collections are being
// added or removed.
type ConfigWatcher struct {
	path     string
	onChange func()
	onError  func(error)

	watcher *fsnotify.Watcher

	mu       sync.Mutex
	isClosed bool

	timer *time.Timer
}

// NewConfigWatcher builds a watcher over the file at path. onChange and
// onError are invoked from an internal goroutine and must not block.
func NewConfigWatcher(path string, onChange func(), onError func(error)) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	return &ConfigWatcher{
		path:     path,
		onChange: onChange,
		onError:  onError,
		watcher:  w,
	}, nil
}

// Start runs the watch loop until ctx is cancelled or Stop is called.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return ErrConfigWatcherClosed
			}
			cw.handleEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return ErrConfigWatcherClosed
			}
			if cw.onError != nil {
				cw.onError(err)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (cw *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(cw.path) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(configDebounceTimeout, func() {
		if cw.onChange != nil {
			cw.onChange()
		}
	})
}

// Stop closes the underlying fsnotify watcher.
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.isClosed {
		return ErrConfigWatcherClosed
	}
	cw.isClosed = true
	if cw.timer != nil {
		cw.timer.Stop()
	}

	if err := cw.watcher.Close(); err != nil {
		slog.Warn("fswatch: error closing config watcher", "error", err)
		return err
	}
	return nil
}
