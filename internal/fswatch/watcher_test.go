package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rjeczalik/notify"
	"github.com/stretchr/testify/require"

	"github.com/collaborator-ai/seedvault-sub000/internal/config"
)

func newTestWatcher(t *testing.T, collections []config.Collection) (*Watcher, chan FileEvent, chan error) {
	t.Helper()
	events := make(chan FileEvent, 64)
	errs := make(chan error, 16)

	w := New(collections, func(e FileEvent) {
		events <- e
	}, func(err error) {
		errs <- err
	})
	return w, events, errs
}

func TestCollectionFor_PicksLongestMatch(t *testing.T) {
	root := t.TempDir()
	notes := filepath.Join(root, "notes")
	nested := filepath.Join(notes, "archive")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	w, _, _ := newTestWatcher(t, []config.Collection{
		{Name: "notes", Path: notes},
		{Name: "archive", Path: nested},
	})

	coll, ok := w.collectionFor(filepath.Join(nested, "a.md"))
	require.True(t, ok)
	require.Equal(t, "archive", coll.Name)

	coll, ok = w.collectionFor(filepath.Join(notes, "b.md"))
	require.True(t, ok)
	require.Equal(t, "notes", coll.Name)
}

func TestCollectionFor_OutsideEveryCollection(t *testing.T) {
	root := t.TempDir()
	notes := filepath.Join(root, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o755))

	w, _, _ := newTestWatcher(t, []config.Collection{{Name: "notes", Path: notes}})

	_, ok := w.collectionFor(filepath.Join(root, "other", "a.md"))
	require.False(t, ok)
}

func TestToServerPath_FiltersNonMarkdownAndIgnored(t *testing.T) {
	root := t.TempDir()
	notes := filepath.Join(root, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o755))

	w, _, _ := newTestWatcher(t, []config.Collection{{Name: "notes", Path: notes}})

	_, ok := w.toServerPath(filepath.Join(notes, "readme.txt"))
	require.False(t, ok, "non-markdown files must not map to a ServerPath")

	_, ok = w.toServerPath(filepath.Join(notes, ".hidden.md"))
	require.False(t, ok, "dotfiles must be ignored")

	sp, ok := w.toServerPath(filepath.Join(notes, "sub", "a.md"))
	require.True(t, ok)
	require.Equal(t, "notes/sub/a.md", string(sp))
}

func TestWatcher_StartTransitionsToReady(t *testing.T) {
	root := t.TempDir()
	notes := filepath.Join(root, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o755))

	w, _, _ := newTestWatcher(t, []config.Collection{{Name: "notes", Path: notes}})
	require.Equal(t, StateStarting, w.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	require.Equal(t, StateReady, w.State())

	w.Stop()
	require.Equal(t, StateClosed, w.State())
}

func TestWatcher_DebouncesBurstIntoSingleEvent(t *testing.T) {
	root := t.TempDir()
	notes := filepath.Join(root, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o755))

	w, events, _ := newTestWatcher(t, []config.Collection{{Name: "notes", Path: notes}})

	path := filepath.Join(notes, "burst.md")
	for i := 0; i < 5; i++ {
		w.debounceEvent(fakeEvent{path: path})
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case ev := <-events:
		require.Equal(t, "notes/burst.md", string(ev.ServerPath))
	case <-time.After(debounceTimeout + 500*time.Millisecond):
		t.Fatal("expected a debounced event to be flushed")
	}

	select {
	case ev := <-events:
		t.Fatalf("expected only one flushed event, got a second: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeEvent struct {
	path string
}

func (e fakeEvent) Event() notify.Event { return notify.Write }
func (e fakeEvent) Path() string        { return e.path }
func (e fakeEvent) Sys() interface{}    { return nil }
