package seedsdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{ServerURL: srv.URL, AuthToken: "tok"})
	require.NoError(t, err)
	return client, srv
}

func TestNew_RejectsMissingFields(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoServerURL)

	_, err = New(Config{ServerURL: "https://example.com"})
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestEncodePath_PreservesSlashesEncodesSegments(t *testing.T) {
	assert.Equal(t, "notes/a%20b.md", encodePath("notes/a b.md"))
	assert.Equal(t, "a/b/c.md", encodePath("a/b/c.md"))
}

func TestHealth_Reachable(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ok, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPutFile_SendsOriginHeaders(t *testing.T) {
	var gotCtime, gotMtime, gotPath, gotType string
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotCtime = r.Header.Get("X-Origin-Ctime")
		gotMtime = r.Header.Get("X-Origin-Mtime")
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	})

	ctime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mtime := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	err := client.PutFile(context.Background(), "alice", "notes/a.md", []byte("# Hi\n"), PutFileOptions{
		OriginCtime: &ctime,
		OriginMtime: &mtime,
	})
	require.NoError(t, err)
	assert.Equal(t, "/v1/files/alice/notes/a.md", gotPath)
	assert.Equal(t, "text/markdown", gotType)
	assert.NotEmpty(t, gotCtime)
	assert.NotEmpty(t, gotMtime)
}

func TestPutFile_SemanticErrorParsesBody(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid path"}`))
	})

	err := client.PutFile(context.Background(), "alice", "notes/a.md", []byte("x"), PutFileOptions{})
	require.Error(t, err)

	apiErr, ok := AsApiError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid path", apiErr.Message)
	assert.True(t, apiErr.IsSemantic())
	assert.False(t, apiErr.IsAuth())
}

func TestDeleteFile_ServerError(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.DeleteFile(context.Background(), "alice", "notes/a.md")
	require.Error(t, err)

	apiErr, ok := AsApiError(err)
	require.True(t, ok)
	assert.False(t, apiErr.IsSemantic())
}

func TestListFiles_ReturnsEntries(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "notes/", r.URL.Query().Get("prefix"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"path":"notes/a.md","size":5,"created_at":"2026-01-01T00:00:00Z","modified_at":"2026-01-02T00:00:00Z"}]`))
	})

	files, err := client.ListFiles(context.Background(), "notes/")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "notes/a.md", files[0].Path)
	assert.Equal(t, files[0].ModifiedAt, files[0].EffectiveMtime())
}

func TestGetFile_ReturnsBody(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# Hi\n"))
	})

	body, err := client.GetFile(context.Background(), "alice", "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "# Hi\n", body)
}
