package localapi_test

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collaborator-ai/seedvault-sub000/internal/localapi"
	"github.com/collaborator-ai/seedvault-sub000/internal/supervisor"
)

// fakeRemote is a minimal stand-in for the sync server: enough to satisfy
// the supervisor's startup reachability check and an empty initial full
// sync against zero collections.
func fakeRemote() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/health":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/v1/files":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]any{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

// startTestSupervisor writes a minimal config with no collections and
// starts the supervisor against remote in the background, returning a
// router built on top of it once bootstrap has had a chance to settle.
func startTestSupervisor(t *testing.T, remote *httptest.Server) (*supervisor.Supervisor, http.Handler) {
	t.Helper()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	body := `{"server":"` + remote.URL + `","token":"tok","username":"alice","collections":[]}`
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o644))

	sup := supervisor.New(configPath)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- sup.Start(ctx) }()

	require.Eventually(t, func() bool {
		return sup.Status().ServerURL == remote.URL
	}, 2*time.Second, 10*time.Millisecond)

	return sup, localapi.NewRouter(sup)
}

func TestStatus_ReturnsRunningSnapshot(t *testing.T) {
	remote := fakeRemote()
	defer remote.Close()
	_, router := startTestSupervisor(t, remote)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, true, got["running"])
	require.Equal(t, "alice", got["username"])
	require.Equal(t, true, got["server_reachable"])
	require.Equal(t, float64(0), got["collections_watched"])
}

func TestGetConfig_RedactsToken(t *testing.T) {
	remote := fakeRemote()
	defer remote.Close()
	_, router := startTestSupervisor(t, remote)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "tok")
}

func TestMutateCollections_InvalidActionReturnsBadRequest(t *testing.T) {
	remote := fakeRemote()
	defer remote.Close()
	_, router := startTestSupervisor(t, remote)

	rec := httptest.NewRecorder()
	body := `{"action":"rename","name":"notes","path":"/tmp/notes"}`
	req := httptest.NewRequest(http.MethodPut, "/config/collections", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMutateCollections_AddPersistsAndReturnsNoContent(t *testing.T) {
	remote := fakeRemote()
	defer remote.Close()
	_, router := startTestSupervisor(t, remote)

	notesDir := t.TempDir()

	rec := httptest.NewRecorder()
	body := `{"action":"add","name":"notes","path":"` + notesDir + `"}`
	req := httptest.NewRequest(http.MethodPut, "/config/collections", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestVersion_ReturnsVersionFields(t *testing.T) {
	remote := fakeRemote()
	defer remote.Close()
	_, router := startTestSupervisor(t, remote)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Contains(t, got, "version")
}

func TestNoRoute_UnknownNonProxiedPathIs404(t *testing.T) {
	remote := fakeRemote()
	defer remote.Close()
	_, router := startTestSupervisor(t, remote)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoRoute_ProxiedPathForwardsToRemote(t *testing.T) {
	remote := fakeRemote()
	defer remote.Close()
	_, router := startTestSupervisor(t, remote)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

// fakeGzipRemote answers /v1/files with a genuinely gzip-compressed body
// and a Content-Encoding: gzip header, so the proxy path is exercised
// against an upstream that actually compresses instead of one that never
// would have set Content-Encoding in the first place.
func fakeGzipRemote(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/v1/files":
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			_, _ = gz.Write([]byte(`[{"path":"notes/a.md"}]`))
			_ = gz.Close()
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestProxy_DecompressesGzipUpstreamResponse(t *testing.T) {
	remote := fakeGzipRemote(t)
	defer remote.Close()
	_, router := startTestSupervisor(t, remote)

	// Deliberately no Accept-Encoding: an incoming request that never asked
	// for compression leaves the outbound request to upstream bare too, so
	// http.Transport negotiates gzip and decompresses the response itself.
	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Content-Encoding"), "decompressed body must not still claim Content-Encoding: gzip")

	var got []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "notes/a.md", got[0]["path"])
}
