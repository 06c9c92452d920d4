// Package fswatch implements the daemon's filesystem watcher (spec
// component C4): it maps local directory events across every active
// collection onto normalized ServerPath events, debouncing write bursts
// and filtering ignored paths. Its notify-with-polling-fallback shape is
// grounded on the teacher's internal/client/sync file watcher; the
// collection-aware server-path mapping and ignore rules are new.
package fswatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/collaborator-ai/seedvault-sub000/internal/config"
	"github.com/collaborator-ai/seedvault-sub000/internal/syncpath"
)

// State is the watcher's lifecycle state machine: Starting -> Ready ->
// Closed. On an irrecoverable backend error the watcher transitions to
// Closed and the supervisor is responsible for rebuilding it.
type State int

const (
	StateStarting State = iota
	StateReady
	StateClosed
)

const (
	debounceTimeout = 300 * time.Millisecond
	pollInterval    = 25 * time.Millisecond
	eventBufferSize = 256

	// ForcePollEnv forces the polling fallback even when native
	// notifications appear available, per spec.md §6.
	ForcePollEnv = "SEEDVAULT_FORCE_POLL"
)

// Watcher watches every path in a fixed set of collections recursively
// and emits FileEvents through the on_event callback supplied at
// construction.
type Watcher struct {
	collections []config.Collection
	onEvent     func(FileEvent)
	onError     func(error)
	ignore      *gitignore.GitIgnore

	mu    sync.RWMutex
	state State

	rawEvents chan notify.EventInfo
	done      chan struct{}
	wg        sync.WaitGroup

	pendingEvents map[string]notify.EventInfo
	eventTimers   map[string]*time.Timer
	debounceMu    sync.Mutex
}

// New builds a Watcher over collections. onEvent and onError are called
// from internal goroutines and must not block for long.
func New(collections []config.Collection, onEvent func(FileEvent), onError func(error)) *Watcher {
	return &Watcher{
		collections:   collections,
		onEvent:       onEvent,
		onError:       onError,
		ignore:        newIgnoreMatcher(),
		state:         StateStarting,
		pendingEvents: make(map[string]notify.EventInfo),
		eventTimers:   make(map[string]*time.Timer),
	}
}

// State returns the watcher's current lifecycle state.
func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Start watches every collection path recursively and begins emitting
// debounced events. It returns once watching has begun; per-collection
// notify failures fall back to polling transparently rather than
// failing Start.
func (w *Watcher) Start(ctx context.Context) error {
	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	w.done = make(chan struct{})

	forcePoll := os.Getenv(ForcePollEnv) == "1"
	var pollDirs []string

	for _, coll := range w.collections {
		if forcePoll {
			pollDirs = append(pollDirs, coll.Path)
			continue
		}

		recursivePath := coll.Path + "/..."
		if err := notify.Watch(recursivePath, w.rawEvents, notify.Create, notify.Remove, notify.Write, notify.Rename); err != nil {
			slog.Warn("fswatch: notify backend unavailable for collection; using polling fallback", "collection", coll.Name, "error", err)
			pollDirs = append(pollDirs, coll.Path)
		}
	}

	if len(pollDirs) > 0 {
		w.wg.Add(1)
		go w.pollForChanges(ctx, pollDirs)
	}

	w.wg.Add(1)
	go w.filterEvents(ctx)

	w.setState(StateReady)
	return nil
}

// Stop tears down all watches and waits for internal goroutines to
// finish flushing any pending debounced events.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state == StateClosed {
		w.mu.Unlock()
		return
	}
	w.state = StateClosed
	w.mu.Unlock()

	close(w.done)
	notify.Stop(w.rawEvents)
	w.wg.Wait()
}

// collectionFor returns the collection whose path is an ancestor of (or
// equal to) localPath, preferring the longest (most specific) match.
// Collections never overlap by construction (internal/config.Normalize),
// so at most one genuine match exists, but the longest-match rule keeps
// this correct even if that invariant is ever violated upstream.
func (w *Watcher) collectionFor(localPath string) (config.Collection, bool) {
	var best config.Collection
	found := false

	for _, coll := range w.collections {
		if coll.Path == localPath || strings.HasPrefix(localPath, coll.Path+string(filepath.Separator)) {
			if !found || len(coll.Path) > len(best.Path) {
				best = coll
				found = true
			}
		}
	}

	return best, found
}

// toServerPath maps an absolute local path onto a syncpath.Path, or
// returns ok=false when the path falls outside every active collection,
// isn't a .md file, or is covered by an ignore rule.
func (w *Watcher) toServerPath(localPath string) (syncpath.Path, bool) {
	coll, ok := w.collectionFor(localPath)
	if !ok {
		return "", false
	}

	rel, err := filepath.Rel(coll.Path, localPath)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)

	if shouldIgnore(w.ignore, rel) {
		return "", false
	}
	if !strings.HasSuffix(rel, ".md") {
		return "", false
	}

	sp, err := syncpath.New(coll.Name, rel)
	if err != nil {
		return "", false
	}
	return sp, true
}

func notifyEventKind(e notify.Event) FileEventKind {
	switch {
	case e&notify.Create != 0:
		return Added
	case e&notify.Remove != 0 || e&notify.Rename != 0:
		return Removed
	default:
		return Changed
	}
}

func (w *Watcher) pollForChanges(ctx context.Context, dirs []string) {
	defer w.wg.Done()

	type sig struct {
		modTime int64
		size    int64
	}
	snapshot := make(map[string]sig)

	scan := func() {
		for _, dir := range dirs {
			_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				info, err := d.Info()
				if err != nil {
					return nil
				}
				cur := sig{modTime: info.ModTime().UnixNano(), size: info.Size()}
				prev, existed := snapshot[path]
				snapshot[path] = cur
				if !existed {
					w.enqueueRaw(pollingEvent{path: path, kind: notify.Create})
				} else if prev != cur {
					w.enqueueRaw(pollingEvent{path: path, kind: notify.Write})
				}
				return nil
			})
		}
	}

	scan()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			scan()
		}
	}
}

type pollingEvent struct {
	path string
	kind notify.Event
}

func (e pollingEvent) Event() notify.Event { return e.kind }
func (e pollingEvent) Path() string        { return e.path }
func (e pollingEvent) Sys() interface{}    { return nil }

func (w *Watcher) enqueueRaw(event notify.EventInfo) {
	select {
	case w.rawEvents <- event:
	default:
		slog.Warn("fswatch: raw event channel full, dropping", "path", event.Path())
	}
}

// filterEvents debounces raw events per path, aggregating write bursts
// for debounceTimeout of quiescence before emitting Changed, per
// spec.md §4.4.
func (w *Watcher) filterEvents(ctx context.Context) {
	defer func() {
		w.debounceMu.Lock()
		for path, timer := range w.eventTimers {
			timer.Stop()
			if event, ok := w.pendingEvents[path]; ok {
				w.emit(event)
			}
		}
		w.debounceMu.Unlock()
		w.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.rawEvents:
			if !ok {
				w.handleBackendClosed()
				return
			}
			w.debounceEvent(event)
		}
	}
}

func (w *Watcher) debounceEvent(event notify.EventInfo) {
	path := event.Path()

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, ok := w.eventTimers[path]; ok {
		timer.Stop()
	}
	w.pendingEvents[path] = event

	w.eventTimers[path] = time.AfterFunc(debounceTimeout, func() {
		w.flushPath(path)
	})
}

func (w *Watcher) flushPath(path string) {
	w.debounceMu.Lock()
	event, ok := w.pendingEvents[path]
	if !ok {
		w.debounceMu.Unlock()
		return
	}
	delete(w.pendingEvents, path)
	delete(w.eventTimers, path)
	w.debounceMu.Unlock()

	w.emit(event)
}

func (w *Watcher) emit(event notify.EventInfo) {
	serverPath, ok := w.toServerPath(event.Path())
	if !ok {
		return
	}

	w.onEvent(FileEvent{
		Kind:       notifyEventKind(event.Event()),
		LocalPath:  event.Path(),
		ServerPath: serverPath,
	})
}

func (w *Watcher) handleBackendClosed() {
	w.setState(StateClosed)
	if w.onError != nil {
		w.onError(errors.New("fswatch: notify backend closed"))
	}
}
