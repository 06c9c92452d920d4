// Package syncer implements the daemon's sync engine (spec component
// C6): the initial-sync/reconciliation algorithm, orphan purge, and
// event-driven uploads/deletes, all funneled through the retry queue.
// Its bounded-concurrency fan-out is grounded on the teacher's
// errgroup-based composition in internal/client/daemon.go, applied here
// one level down to per-file operations instead of whole subsystems.
package syncer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/collaborator-ai/seedvault-sub000/internal/config"
	"github.com/collaborator-ai/seedvault-sub000/internal/fswatch"
	"github.com/collaborator-ai/seedvault-sub000/internal/retryqueue"
	"github.com/collaborator-ai/seedvault-sub000/internal/seedsdk"
	"github.com/collaborator-ai/seedvault-sub000/internal/syncpath"
)

// uploadConcurrency bounds the fan-out width for per-file uploads and
// deletes during a sync pass, per spec.md §4.6 step 4.
const uploadConcurrency = 10

// Syncer owns the per-collection sync operations and the single retry
// queue shared by event-driven and reconciliation-driven writes.
type Syncer struct {
	username string
	client   *seedsdk.Client
	queue    *retryqueue.Queue

	collections []config.Collection
}

// New builds a Syncer over the given active collections.
func New(username string, client *seedsdk.Client, queue *retryqueue.Queue, collections []config.Collection) *Syncer {
	return &Syncer{
		username:    username,
		client:      client,
		queue:       queue,
		collections: collections,
	}
}

// SetCollections swaps the active collection set, used by the supervisor
// after a config reload.
func (s *Syncer) SetCollections(collections []config.Collection) {
	s.collections = collections
}

type localFile struct {
	absPath    string
	relPath    string
	serverPath syncpath.Path
	modTime    time.Time
	birthTime  time.Time
	size       int64
}

// SyncSummary reports what a full sync pass did, for structured logging.
type SyncSummary struct {
	Uploaded int
	Deleted  int
	Skipped  int
	Purged   int
	Errors   int
}

// Add combines two summaries.
func (s SyncSummary) Add(o SyncSummary) SyncSummary {
	return SyncSummary{
		Uploaded: s.Uploaded + o.Uploaded,
		Deleted:  s.Deleted + o.Deleted,
		Skipped:  s.Skipped + o.Skipped,
		Purged:   s.Purged + o.Purged,
		Errors:   s.Errors + o.Errors,
	}
}

// FullSync runs initial-sync/reconciliation over every active collection,
// then purges orphaned server files belonging to collections no longer
// active. Per spec.md §4.6, transport failures at the collection level
// are logged and do not halt the rest of the pass.
func (s *Syncer) FullSync(ctx context.Context) SyncSummary {
	start := time.Now()
	var total SyncSummary

	for _, coll := range s.collections {
		summary, err := s.syncCollection(ctx, coll)
		if err != nil {
			slog.Error("syncer: collection sync failed", "collection", coll.Name, "error", err)
		}
		total = total.Add(summary)
	}

	purged, err := s.purgeOrphans(ctx)
	if err != nil {
		slog.Error("syncer: orphan purge failed", "error", err)
	}
	total.Purged += purged

	slog.Info("syncer: full sync complete",
		"uploaded", total.Uploaded,
		"deleted", total.Deleted,
		"skipped", total.Skipped,
		"purged", total.Purged,
		"errors", total.Errors,
		"elapsed", time.Since(start),
	)
	return total
}

// SyncOne runs the initial-sync algorithm over a single collection,
// without touching orphan purge. Used by the supervisor when only a
// subset of collections were just added.
func (s *Syncer) SyncOne(ctx context.Context, coll config.Collection) (SyncSummary, error) {
	return s.syncCollection(ctx, coll)
}

func (s *Syncer) syncCollection(ctx context.Context, coll config.Collection) (SyncSummary, error) {
	var summary SyncSummary

	remote, err := s.client.ListFiles(ctx, coll.Name+"/")
	if err != nil {
		return summary, fmt.Errorf("list files: %w", err)
	}
	remoteByPath := make(map[string]seedsdk.RemoteFile, len(remote))
	for _, f := range remote {
		remoteByPath[f.Path] = f
	}

	local, err := walkCollection(coll)
	if err != nil {
		return summary, fmt.Errorf("walk collection: %w", err)
	}

	var toUpload []localFile
	seenLocal := make(map[string]struct{}, len(local))
	for _, lf := range local {
		seenLocal[string(lf.serverPath)] = struct{}{}

		rf, onServer := remoteByPath[string(lf.serverPath)]
		if onServer && !rf.EffectiveMtime().Before(lf.modTime) {
			summary.Skipped++
			continue
		}
		toUpload = append(toUpload, lf)
	}

	var toDelete []string
	for path := range remoteByPath {
		if _, ok := seenLocal[path]; !ok {
			toDelete = append(toDelete, path)
		}
	}

	uploaded, uploadErrs := runBoundedGeneric(ctx, toUpload, s.uploadOne)
	summary.Uploaded += uploaded
	summary.Errors += uploadErrs

	deleted, deleteErrs := s.deleteMany(ctx, toDelete)
	summary.Deleted += deleted
	summary.Errors += deleteErrs

	return summary, nil
}

// runBoundedGeneric fans work out across uploadConcurrency goroutines,
// counting successes and failures. fn enqueues items that fail inline
// itself; its error is only counted and never returned to errgroup, so
// errgroup's first-error cancellation is never triggered here — one
// failing item must never abort its siblings.
func runBoundedGeneric[T any](ctx context.Context, items []T, fn func(context.Context, T) error) (int, int) {
	if len(items) == 0 {
		return 0, 0
	}

	var ok, bad atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(uploadConcurrency)

	for _, item := range items {
		item := item
		eg.Go(func() error {
			if err := fn(egCtx, item); err != nil {
				bad.Add(1)
			} else {
				ok.Add(1)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return int(ok.Load()), int(bad.Load())
}

func (s *Syncer) uploadOne(ctx context.Context, lf localFile) error {
	content, err := os.ReadFile(lf.absPath)
	if err != nil {
		// File vanished between walk and upload; treat as nothing to do.
		return nil
	}

	ctime := lf.birthTime
	mtime := lf.modTime
	err = s.client.PutFile(ctx, s.username, string(lf.serverPath), content, seedsdk.PutFileOptions{
		OriginCtime: &ctime,
		OriginMtime: &mtime,
	})
	if err != nil {
		s.queue.Enqueue(ctx, &retryqueue.PutOp{
			Username:     s.username,
			ServerPath:   string(lf.serverPath),
			Content:      content,
			OriginCtime:  &ctime,
			OriginMtime:  &mtime,
			EnqueuedAt:   time.Now(),
		})
		return err
	}
	return nil
}

func (s *Syncer) deleteOne(ctx context.Context, path string) error {
	err := s.client.DeleteFile(ctx, s.username, path)
	if err != nil {
		s.queue.Enqueue(ctx, &retryqueue.DeleteOp{
			Username:   s.username,
			ServerPath: path,
			EnqueuedAt: time.Now(),
		})
		return err
	}
	return nil
}

// deleteMany fans deleteOne out across the shared bounded-concurrency pool.
func (s *Syncer) deleteMany(ctx context.Context, paths []string) (int, int) {
	return runBoundedGeneric(ctx, paths, s.deleteOne)
}

// purgeOrphans lists every file under the username and deletes any whose
// first path segment does not name a currently active collection.
func (s *Syncer) purgeOrphans(ctx context.Context) (int, error) {
	all, err := s.client.ListFiles(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list all files: %w", err)
	}

	active := make(map[string]struct{}, len(s.collections))
	for _, c := range s.collections {
		active[c.Name] = struct{}{}
	}

	var orphans []string
	for _, f := range all {
		name := syncpath.Path(f.Path).Collection()
		if _, ok := active[name]; !ok {
			orphans = append(orphans, f.Path)
		}
	}

	purged, _ := s.deleteMany(ctx, orphans)
	return purged, nil
}

// PurgeCollection deletes every server file under "<name>/", used when a
// collection is removed from the config. Failures are enqueued on the
// retry queue rather than surfaced, per spec.md §4.6.
func (s *Syncer) PurgeCollection(ctx context.Context, name string) (int, error) {
	files, err := s.client.ListFiles(ctx, name+"/")
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}

	purged, _ := s.deleteMany(ctx, paths)
	return purged, nil
}

// HandleEvent translates a filesystem event into a queued Put or Delete,
// per spec.md §4.6: events are never executed synchronously.
func (s *Syncer) HandleEvent(ctx context.Context, event fswatch.FileEvent) {
	switch event.Kind {
	case fswatch.Added, fswatch.Changed:
		content, err := os.ReadFile(event.LocalPath)
		if err != nil {
			slog.Warn("syncer: could not read changed file, skipping", "path", event.LocalPath, "error", err)
			return
		}
		info, err := os.Stat(event.LocalPath)
		if err != nil {
			slog.Warn("syncer: could not stat changed file, skipping", "path", event.LocalPath, "error", err)
			return
		}

		mtime := info.ModTime()
		ctime := birthTime(event.LocalPath, info)
		s.queue.Enqueue(ctx, &retryqueue.PutOp{
			Username:    s.username,
			ServerPath:  string(event.ServerPath),
			Content:     content,
			OriginCtime: &ctime,
			OriginMtime: &mtime,
			EnqueuedAt:  time.Now(),
		})

	case fswatch.Removed:
		s.queue.Enqueue(ctx, &retryqueue.DeleteOp{
			Username:   s.username,
			ServerPath: string(event.ServerPath),
			EnqueuedAt: time.Now(),
		})
	}
}

// walkCollection collects every .md file under coll.Path, skipping
// dotfiles, dot-directories and node_modules. Unlike the watcher's ignore
// rules, it does not skip path segments containing ".tmp.".
func walkCollection(coll config.Collection) ([]localFile, error) {
	var files []localFile

	err := filepath.WalkDir(coll.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			base := d.Name()
			if base != "." && strings.HasPrefix(base, ".") && path != coll.Path {
				return filepath.SkipDir
			}
			if base == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		rel, err := filepath.Rel(coll.Path, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		sp, err := syncpath.New(coll.Name, rel)
		if err != nil {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		files = append(files, localFile{
			absPath:    path,
			relPath:    rel,
			serverPath: sp,
			modTime:    info.ModTime(),
			birthTime:  birthTime(path, info),
			size:       info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
