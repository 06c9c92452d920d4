package localapi_test

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collaborator-ai/seedvault-sub000/internal/fswatch"
)

func TestLocalEvents_StreamsBusEventsAsSSE(t *testing.T) {
	remote := fakeRemote()
	defer remote.Close()
	sup, router := startTestSupervisor(t, remote)

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events/local")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "connected")

	// discard the blank line after the connected comment
	_, _ = reader.ReadString('\n')

	time.Sleep(50 * time.Millisecond)
	sup.Bus().Emit(fswatch.FileEvent{
		Kind:       fswatch.Changed,
		LocalPath:  "/tmp/notes/a.md",
		ServerPath: "notes/a.md",
	})

	eventLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, eventLine, "event: file_changed")

	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, dataLine, `"kind":"changed"`)
	require.Contains(t, dataLine, `"server_path":"notes/a.md"`)
}
