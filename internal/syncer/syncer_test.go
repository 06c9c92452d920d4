package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collaborator-ai/seedvault-sub000/internal/config"
	"github.com/collaborator-ai/seedvault-sub000/internal/fswatch"
	"github.com/collaborator-ai/seedvault-sub000/internal/retryqueue"
	"github.com/collaborator-ai/seedvault-sub000/internal/seedsdk"
)

type fakeServer struct {
	mu    sync.Mutex
	files map[string]seedsdk.RemoteFile

	puts     []string
	deletes  []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{files: make(map[string]seedsdk.RemoteFile)}
}

func (s *fakeServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/files":
			prefix := r.URL.Query().Get("prefix")
			var out []seedsdk.RemoteFile
			for path, f := range s.files {
				if strings.HasPrefix(path, prefix) {
					out = append(out, f)
				}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(out)

		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/v1/files/"):
			path := strings.TrimPrefix(r.URL.Path, "/v1/files/alice/")
			s.puts = append(s.puts, path)
			s.files[path] = seedsdk.RemoteFile{Path: path, ModifiedAt: time.Now()}
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/v1/files/"):
			path := strings.TrimPrefix(r.URL.Path, "/v1/files/alice/")
			s.deletes = append(s.deletes, path)
			delete(s.files, path)
			w.WriteHeader(http.StatusOK)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestSyncer(t *testing.T, srv *fakeServer, collections []config.Collection) *Syncer {
	t.Helper()
	httpSrv := httptest.NewServer(srv.handler())
	t.Cleanup(httpSrv.Close)

	client, err := seedsdk.New(seedsdk.Config{ServerURL: httpSrv.URL, AuthToken: "tok"})
	require.NoError(t, err)

	queue := retryqueue.New(client, func(string) {})
	t.Cleanup(queue.Stop)

	return New("alice", client, queue, collections)
}

func TestFullSync_UploadsNewLocalFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("hello"), 0o644))

	srv := newFakeServer()
	s := newTestSyncer(t, srv, []config.Collection{{Name: "notes", Path: dir}})

	summary := s.FullSync(context.Background())
	require.Equal(t, 1, summary.Uploaded)
	require.Contains(t, srv.puts, "notes/a.md")
}

func TestFullSync_SkipsWhenServerIsNewer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	srv := newFakeServer()
	srv.files["notes/a.md"] = seedsdk.RemoteFile{
		Path:       "notes/a.md",
		ModifiedAt: time.Now().Add(1 * time.Hour),
	}

	s := newTestSyncer(t, srv, []config.Collection{{Name: "notes", Path: dir}})

	summary := s.FullSync(context.Background())
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 0, summary.Uploaded)
}

func TestFullSync_DeletesServerFilesNotPresentLocally(t *testing.T) {
	dir := t.TempDir()

	srv := newFakeServer()
	srv.files["notes/gone.md"] = seedsdk.RemoteFile{Path: "notes/gone.md", ModifiedAt: time.Now()}

	s := newTestSyncer(t, srv, []config.Collection{{Name: "notes", Path: dir}})

	summary := s.FullSync(context.Background())
	require.Equal(t, 1, summary.Deleted)
	require.Contains(t, srv.deletes, "notes/gone.md")
}

func TestFullSync_PurgesOrphanedCollections(t *testing.T) {
	dir := t.TempDir()

	srv := newFakeServer()
	srv.files["removed-collection/old.md"] = seedsdk.RemoteFile{Path: "removed-collection/old.md", ModifiedAt: time.Now()}

	s := newTestSyncer(t, srv, []config.Collection{{Name: "notes", Path: dir}})

	summary := s.FullSync(context.Background())
	require.Equal(t, 1, summary.Purged)
	require.Contains(t, srv.deletes, "removed-collection/old.md")
}

func TestPurgeCollection_DeletesEverythingUnderName(t *testing.T) {
	dir := t.TempDir()

	srv := newFakeServer()
	srv.files["notes/a.md"] = seedsdk.RemoteFile{Path: "notes/a.md", ModifiedAt: time.Now()}
	srv.files["notes/b.md"] = seedsdk.RemoteFile{Path: "notes/b.md", ModifiedAt: time.Now()}

	s := newTestSyncer(t, srv, []config.Collection{{Name: "notes", Path: dir}})

	purged, err := s.PurgeCollection(context.Background(), "notes")
	require.NoError(t, err)
	require.Equal(t, 2, purged)
}

func TestHandleEvent_AddedEnqueuesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	srv := newFakeServer()
	s := newTestSyncer(t, srv, []config.Collection{{Name: "notes", Path: dir}})

	s.HandleEvent(context.Background(), fswatch.FileEvent{
		Kind:       fswatch.Added,
		LocalPath:  path,
		ServerPath: "notes/a.md",
	})

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.puts) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHandleEvent_RemovedEnqueuesDelete(t *testing.T) {
	dir := t.TempDir()

	srv := newFakeServer()
	srv.files["notes/a.md"] = seedsdk.RemoteFile{Path: "notes/a.md", ModifiedAt: time.Now()}
	s := newTestSyncer(t, srv, []config.Collection{{Name: "notes", Path: dir}})

	s.HandleEvent(context.Background(), fswatch.FileEvent{
		Kind:       fswatch.Removed,
		ServerPath: "notes/a.md",
	})

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.deletes) == 1
	}, time.Second, 10*time.Millisecond)
}
