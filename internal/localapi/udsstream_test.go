package localapi

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collaborator-ai/seedvault-sub000/internal/fswatch"
	"github.com/collaborator-ai/seedvault-sub000/internal/supervisor"
)

func TestChangeStream_BroadcastsEventToConnectedClient(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	sup := supervisor.New(configPath)
	cs := NewChangeStream(sup, configPath)
	require.NoError(t, cs.Start())
	defer cs.Stop()

	sockPath := filepath.Join(dir, socketFileName)
	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	// give the accept loop a moment to register the connection
	time.Sleep(50 * time.Millisecond)

	sup.Bus().Emit(fswatch.FileEvent{
		Kind:       fswatch.Added,
		LocalPath:  "/tmp/notes/a.md",
		ServerPath: "notes/a.md",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, `"action":"file_write"`)
	require.Contains(t, line, `"path":"notes/a.md"`)
	require.Contains(t, line, `"collection":"notes"`)
}

func TestChangeStream_RemovesStaleSocketOnStart(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	sockPath := filepath.Join(dir, socketFileName)

	require.NoError(t, os.WriteFile(sockPath, []byte("stale"), 0o644))

	sup := supervisor.New(configPath)
	cs := NewChangeStream(sup, configPath)
	require.NoError(t, cs.Start())
	defer cs.Stop()

	_, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
}

func TestChangeStream_StopRemovesSocketFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	sockPath := filepath.Join(dir, socketFileName)

	sup := supervisor.New(configPath)
	cs := NewChangeStream(sup, configPath)
	require.NoError(t, cs.Start())
	require.NoError(t, cs.Stop())

	_, err := os.Stat(sockPath)
	require.True(t, os.IsNotExist(err))
}
