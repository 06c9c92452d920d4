// Package supervisor implements the daemon's top-level orchestrator
// (spec component C7): startup sequence, config-reload loop, health
// loop, periodic reconciliation, and shutdown, composing every other
// subsystem. Its errgroup-based composition of concurrent loops and
// dedicated shutdown goroutine are grounded on the teacher's
// internal/client/daemon.go ClientDaemon.Start/Stop.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/collaborator-ai/seedvault-sub000/internal/config"
	"github.com/collaborator-ai/seedvault-sub000/internal/eventbus"
	"github.com/collaborator-ai/seedvault-sub000/internal/fswatch"
	"github.com/collaborator-ai/seedvault-sub000/internal/retryqueue"
	"github.com/collaborator-ai/seedvault-sub000/internal/seedsdk"
	"github.com/collaborator-ai/seedvault-sub000/internal/syncer"
)

const (
	healthInterval    = 5 * time.Second
	reconcileInterval = 5 * time.Minute
	shutdownGrace     = 10 * time.Second
)

// Supervisor is the single long-lived entity that owns every other
// subsystem and reacts to config changes, the health/reconcile clocks,
// and watcher events.
type Supervisor struct {
	configPath string
	lock       *pidLock

	mu      sync.RWMutex
	cfg     *config.Config
	client  *seedsdk.Client
	queue   *retryqueue.Queue
	sync    *syncer.Syncer
	watcher *fswatch.Watcher

	configWatcher *fswatch.ConfigWatcher
	bus           *eventbus.Bus[fswatch.FileEvent]

	// busy guards reload/reconcile/event-driven full-sync re-entrance per
	// spec.md §4.7; a sync.Mutex.TryLock, not a bool flag, per the
	// teacher's SyncEngine.runFullSync idiom.
	busy sync.Mutex

	statusMu        sync.Mutex
	lastError       string
	lastReconcileAt time.Time
	lastSyncAt      time.Time
	serverReachable bool
}

// New constructs a Supervisor that will load its configuration from
// configPath.
func New(configPath string) *Supervisor {
	return &Supervisor{
		configPath: configPath,
		bus:        eventbus.New[fswatch.FileEvent](),
	}
}

// Bus exposes the local file-event bus for the local API's SSE endpoint.
func (s *Supervisor) Bus() *eventbus.Bus[fswatch.FileEvent] {
	return s.bus
}

// Config returns a snapshot of the active configuration.
func (s *Supervisor) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Client returns the active HTTP client, for the local API's reverse proxy.
func (s *Supervisor) Client() *seedsdk.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Status builds the current SyncStatus snapshot.
func (s *Supervisor) Status() SyncStatus {
	s.mu.RLock()
	watcherState := StateUnknown
	if s.watcher != nil {
		watcherState = watcherStateString(s.watcher.State())
	}
	pending := 0
	if s.queue != nil {
		pending = s.queue.Pending()
	}
	cfg := s.cfg
	s.mu.RUnlock()

	s.statusMu.Lock()
	lastErr := s.lastError
	lastReconcile := s.lastReconcileAt
	lastSync := s.lastSyncAt
	reachable := s.serverReachable
	s.statusMu.Unlock()

	status := SyncStatus{
		Running:         true,
		ServerReachable: reachable,
		WatcherState:    watcherState,
		QueuePending:    pending,
		LastSyncAt:      lastSync,
		LastReconcileAt: lastReconcile,
		LastError:       lastErr,
		UpdatedAt:       time.Now().UTC(),
	}
	if cfg != nil {
		status.ServerURL = cfg.ServerURL
		status.Username = cfg.Username
		status.CollectionsWatched = len(cfg.Collections)
	}
	return status
}

func (s *Supervisor) setServerReachable(reachable bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.serverReachable = reachable
}

func (s *Supervisor) markSynced() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.lastSyncAt = time.Now().UTC()
}

func (s *Supervisor) setLastError(err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if err == nil {
		s.lastError = ""
		return
	}
	s.lastError = err.Error()
}

// Start runs the full startup sequence and then every loop until ctx is
// cancelled, per spec.md §4.7.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := coexistenceCheck(s.configPath); err != nil {
		return err
	}

	lock, err := acquireLock(s.configPath)
	if err != nil {
		return err
	}
	s.lock = lock

	if err := s.bootstrap(ctx); err != nil {
		_ = s.lock.Release()
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error { return s.configReloadLoop(egCtx) })
	eg.Go(func() error { return s.healthLoop(egCtx) })
	eg.Go(func() error { return s.reconcileLoop(egCtx) })
	eg.Go(func() error { return s.watchLoop(egCtx) })

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("supervisor: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("supervisor: stopped with error", "error", err)
		return err
	}

	slog.Info("supervisor: stopped")
	return nil
}

// bootstrap loads config, verifies server reachability, and builds every
// subsystem, then runs one initial sync, per spec.md §4.7 step 1.
func (s *Supervisor) bootstrap(ctx context.Context) error {
	cfg, removed, err := config.Load(s.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, r := range removed {
		slog.Warn("supervisor: pruned overlapping collection at startup", "name", r.Name, "path", r.Path)
	}
	slog.Info("supervisor: loaded config", "config", cfg)

	client, err := seedsdk.New(seedsdk.Config{ServerURL: cfg.ServerURL, AuthToken: cfg.AuthToken})
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}

	reachable, err := client.Health(ctx)
	if err != nil || !reachable {
		return fmt.Errorf("%w: server unreachable at startup", ErrStartupUnreachable)
	}
	s.setServerReachable(true)

	if _, err := client.Me(ctx); err != nil {
		if apiErr, ok := seedsdk.AsApiError(err); ok && apiErr.IsAuth() {
			return fmt.Errorf("%w: %s", ErrAuthFailed, apiErr)
		}
		return fmt.Errorf("verify identity: %w", err)
	}

	queue := retryqueue.New(client, func(msg string) {
		slog.Info("supervisor: queue status", "status", msg)
	})
	sy := syncer.New(cfg.Username, client, queue, cfg.Collections)

	s.mu.Lock()
	s.cfg = cfg
	s.client = client
	s.queue = queue
	s.sync = sy
	s.mu.Unlock()

	if err := s.rebuildWatcher(ctx, cfg.Collections); err != nil {
		return fmt.Errorf("build watcher: %w", err)
	}
	if err := s.rebuildConfigWatcher(); err != nil {
		return fmt.Errorf("build config watcher: %w", err)
	}

	s.runFullSync(ctx)
	s.writeHealth()
	return nil
}

// rebuildWatcher tears down any existing filesystem watcher and starts a
// fresh one over collections.
func (s *Supervisor) rebuildWatcher(ctx context.Context, collections []config.Collection) error {
	s.mu.Lock()
	old := s.watcher
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	w := fswatch.New(collections, s.onWatcherEvent, s.onWatcherError)
	if err := w.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) rebuildConfigWatcher() error {
	s.mu.Lock()
	old := s.configWatcher
	s.mu.Unlock()
	if old != nil {
		_ = old.Stop()
	}

	cw, err := fswatch.NewConfigWatcher(s.configPath, s.onConfigChanged, func(err error) {
		slog.Warn("supervisor: config watcher error", "error", err)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.configWatcher = cw
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) onWatcherEvent(event fswatch.FileEvent) {
	s.mu.RLock()
	sy := s.sync
	s.mu.RUnlock()
	if sy == nil {
		return
	}
	sy.HandleEvent(context.Background(), event)
	s.bus.Emit(event)
}

func (s *Supervisor) onWatcherError(err error) {
	slog.Error("supervisor: watcher error", "error", err)
	s.setLastError(err)
}

// watchLoop exists only to keep the config watcher's Start loop alive
// under the same errgroup as the other subsystems.
func (s *Supervisor) watchLoop(ctx context.Context) error {
	s.mu.RLock()
	cw := s.configWatcher
	s.mu.RUnlock()
	if cw == nil {
		<-ctx.Done()
		return nil
	}
	err := cw.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Supervisor) onConfigChanged() {
	if !s.busy.TryLock() {
		slog.Debug("supervisor: reload skipped, busy")
		return
	}
	defer s.busy.Unlock()

	ctx := context.Background()
	newCfg, removed, err := config.Load(s.configPath)
	if err != nil {
		slog.Error("supervisor: config reload failed, keeping previous config", "error", err)
		s.setLastError(err)
		return
	}
	for _, r := range removed {
		slog.Warn("supervisor: pruned overlapping collection on reload", "name", r.Name, "path", r.Path)
	}

	s.mu.RLock()
	oldCfg := s.cfg
	s.mu.RUnlock()

	if coreChanged(oldCfg, newCfg) {
		s.applyCoreChange(ctx, newCfg)
		return
	}
	s.applyCollectionChange(ctx, oldCfg, newCfg)
}

func coreChanged(old, updated *config.Config) bool {
	return old.ServerURL != updated.ServerURL || old.AuthToken != updated.AuthToken || old.Username != updated.Username
}

func (s *Supervisor) applyCoreChange(ctx context.Context, cfg *config.Config) {
	slog.Info("supervisor: core config change detected, rebuilding")

	client, err := seedsdk.New(seedsdk.Config{ServerURL: cfg.ServerURL, AuthToken: cfg.AuthToken})
	if err != nil {
		slog.Error("supervisor: failed to build client after reload", "error", err)
		s.setLastError(err)
		return
	}

	s.mu.Lock()
	if s.queue != nil {
		s.queue.Stop()
	}
	queue := retryqueue.New(client, func(msg string) {
		slog.Info("supervisor: queue status", "status", msg)
	})
	sy := syncer.New(cfg.Username, client, queue, cfg.Collections)
	s.cfg = cfg
	s.client = client
	s.queue = queue
	s.sync = sy
	s.mu.Unlock()

	if err := s.rebuildWatcher(ctx, cfg.Collections); err != nil {
		slog.Error("supervisor: failed to rebuild watcher after reload", "error", err)
		s.setLastError(err)
	}

	s.runFullSync(ctx)
	s.writeHealth()
}

func (s *Supervisor) applyCollectionChange(ctx context.Context, old, newCfg *config.Config) {
	added, removed := diffCollections(old.Collections, newCfg.Collections)
	if len(added) == 0 && len(removed) == 0 {
		s.mu.Lock()
		s.cfg = newCfg
		s.mu.Unlock()
		return
	}

	slog.Info("supervisor: collection change detected", "added", len(added), "removed", len(removed))

	s.mu.Lock()
	s.cfg = newCfg
	s.sync.SetCollections(newCfg.Collections)
	sy := s.sync
	s.mu.Unlock()

	if err := s.rebuildWatcher(ctx, newCfg.Collections); err != nil {
		slog.Error("supervisor: failed to rebuild watcher after collection change", "error", err)
		s.setLastError(err)
	}

	for _, r := range removed {
		if _, err := sy.PurgeCollection(ctx, r.Name); err != nil {
			slog.Error("supervisor: failed to purge removed collection", "name", r.Name, "error", err)
		}
	}
	for _, a := range added {
		if _, err := sy.SyncOne(ctx, a); err != nil {
			slog.Error("supervisor: failed to sync added collection", "name", a.Name, "error", err)
		}
	}
	s.markSynced()

	s.writeHealth()
}

// MutateCollections applies an add or remove collection change requested
// through the local API, persists it, and applies the same
// removed/added processing as a config-file-driven collection change,
// per spec.md §4.8's PUT /config/collections contract.
func (s *Supervisor) MutateCollections(ctx context.Context, action, name, path string) error {
	if !s.busy.TryLock() {
		return ErrBusy
	}
	defer s.busy.Unlock()

	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	var updated *config.Config
	var err error

	switch action {
	case "add":
		updated, _, err = config.AddCollection(cfg, path, name)
	case "remove":
		updated, err = config.RemoveCollection(cfg, name)
	default:
		return ErrInvalidAction
	}
	if err != nil {
		return err
	}

	if err := updated.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	added, removed := diffCollections(cfg.Collections, updated.Collections)

	s.mu.Lock()
	s.cfg = updated
	s.sync.SetCollections(updated.Collections)
	sy := s.sync
	s.mu.Unlock()

	if err := s.rebuildWatcher(ctx, updated.Collections); err != nil {
		slog.Error("supervisor: failed to rebuild watcher after local api mutation", "error", err)
		s.setLastError(err)
	}

	for _, r := range removed {
		if _, err := sy.PurgeCollection(ctx, r.Name); err != nil {
			slog.Error("supervisor: failed to purge removed collection", "name", r.Name, "error", err)
		}
	}
	for _, a := range added {
		if _, err := sy.SyncOne(ctx, a); err != nil {
			slog.Error("supervisor: failed to sync added collection", "name", a.Name, "error", err)
		}
	}
	s.markSynced()

	s.writeHealth()
	return nil
}

// diffCollections computes added/removed collections keyed by name; a
// name whose path changed is treated as removed ∪ added, per spec.md
// §4.7 step 2.
func diffCollections(old, updated []config.Collection) (added, removed []config.Collection) {
	oldByName := make(map[string]config.Collection, len(old))
	for _, c := range old {
		oldByName[c.Name] = c
	}
	newByName := make(map[string]config.Collection, len(updated))
	for _, c := range updated {
		newByName[c.Name] = c
	}

	for name, n := range newByName {
		o, existed := oldByName[name]
		if !existed {
			added = append(added, n)
			continue
		}
		if o.Path != n.Path {
			removed = append(removed, o)
			added = append(added, n)
		}
	}
	for name, o := range oldByName {
		if _, stillThere := newByName[name]; !stillThere {
			removed = append(removed, o)
		}
	}
	return added, removed
}

// configReloadLoop exists to satisfy the errgroup signature; the actual
// reload is event-driven via onConfigChanged, called from watchLoop's
// fsnotify callback. This loop only waits for cancellation.
func (s *Supervisor) configReloadLoop(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *Supervisor) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.mu.RLock()
			w := s.watcher
			client := s.client
			s.mu.RUnlock()
			if client != nil {
				reachable, err := client.Health(ctx)
				s.setServerReachable(err == nil && reachable)
			}
			if w != nil && w.State() == fswatch.StateClosed {
				slog.Warn("supervisor: watcher closed, rebuilding")
				s.mu.RLock()
				collections := s.cfg.Collections
				s.mu.RUnlock()
				if err := s.rebuildWatcher(ctx, collections); err != nil {
					slog.Error("supervisor: failed to rebuild watcher", "error", err)
					s.setLastError(err)
				}
			}
			s.writeHealth()
		}
	}
}

func (s *Supervisor) reconcileLoop(ctx context.Context) error {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.busy.TryLock() {
				slog.Debug("supervisor: reconciliation skipped, busy")
				continue
			}
			s.runFullSync(ctx)
			s.busy.Unlock()

			s.statusMu.Lock()
			s.lastReconcileAt = time.Now().UTC()
			s.statusMu.Unlock()
			s.writeHealth()
		}
	}
}

func (s *Supervisor) runFullSync(ctx context.Context) {
	s.mu.RLock()
	sy := s.sync
	s.mu.RUnlock()
	if sy == nil {
		return
	}
	sy.FullSync(ctx)
	s.markSynced()
}

func (s *Supervisor) writeHealth() {
	status := s.Status()
	if err := writeHealthSnapshot(s.configPath, status); err != nil {
		slog.Warn("supervisor: failed to write health snapshot", "error", err)
	}
}

// shutdown stops every loop-owned resource and writes a final health
// snapshot with running=false, per spec.md §4.7 step 5.
func (s *Supervisor) shutdown(ctx context.Context) error {
	s.mu.RLock()
	w := s.watcher
	cw := s.configWatcher
	q := s.queue
	s.mu.RUnlock()

	if w != nil {
		w.Stop()
	}
	if cw != nil {
		_ = cw.Stop()
	}
	if q != nil {
		q.Stop()
	}

	final := s.Status()
	final.Running = false
	if err := writeHealthSnapshot(s.configPath, final); err != nil {
		slog.Warn("supervisor: failed to write final health snapshot", "error", err)
	}

	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			slog.Warn("supervisor: failed to release pid lock", "error", err)
		}
	}

	return nil
}
