package localapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/collaborator-ai/seedvault-sub000/internal/fswatch"
	"github.com/collaborator-ai/seedvault-sub000/internal/supervisor"
)

const socketFileName = "seedvault.sock"

// changeEvent is the wire shape broadcast over the UDS stream, per
// spec.md §4.8 ("Additionally, when the daemon is used headlessly...").
type changeEvent struct {
	Action     string `json:"action"`
	Path       string `json:"path"`
	Collection string `json:"collection"`
	Timestamp  int64  `json:"timestamp"`
}

func actionForKind(kind fswatch.FileEventKind) string {
	switch kind {
	case fswatch.Added, fswatch.Changed:
		return "file_write"
	case fswatch.Removed:
		return "file_delete"
	default:
		return "file_write"
	}
}

// ChangeStream is the optional headless UDS broadcast of local file
// events: one socket in the per-user config directory, newline-delimited
// JSON, no backlog or replay to newly-connecting clients.
type ChangeStream struct {
	sockPath string
	sup      *supervisor.Supervisor
	busID    uuid.UUID

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	listener net.Listener
}

// NewChangeStream builds a stream whose socket sits next to configPath,
// per spec.md's "one socket in the per-user config directory".
func NewChangeStream(sup *supervisor.Supervisor, configPath string) *ChangeStream {
	return &ChangeStream{
		sockPath: filepath.Join(filepath.Dir(configPath), socketFileName),
		sup:      sup,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start removes any stale socket file left behind by an unclean shutdown,
// binds the listener, and begins accepting connections and broadcasting
// bus events. It returns once the listener is bound; the accept loop
// runs in a goroutine started here.
func (cs *ChangeStream) Start() error {
	if err := cs.removeStale(); err != nil {
		return err
	}

	l, err := net.Listen("unix", cs.sockPath)
	if err != nil {
		return err
	}
	cs.listener = l

	id := cs.sup.Bus().Subscribe(cs.onEvent)
	cs.busID = id

	go cs.acceptLoop()

	return nil
}

// removeStale deletes a leftover socket file from a prior unclean exit.
// Unlike the PID file's flock-based staleness check, a Unix socket file
// with nothing listening simply refuses connections, so the dance here
// is delete-then-bind rather than lock-then-inspect.
func (cs *ChangeStream) removeStale() error {
	if _, err := os.Stat(cs.sockPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := os.Remove(cs.sockPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (cs *ChangeStream) acceptLoop() {
	for {
		conn, err := cs.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("localapi: uds accept failed", "error", err)
			return
		}

		cs.mu.Lock()
		cs.conns[conn] = struct{}{}
		cs.mu.Unlock()
	}
}

func (cs *ChangeStream) onEvent(e fswatch.FileEvent) {
	payload, err := json.Marshal(changeEvent{
		Action:     actionForKind(e.Kind),
		Path:       string(e.ServerPath),
		Collection: e.ServerPath.Collection(),
		Timestamp:  time.Now().Unix(),
	})
	if err != nil {
		return
	}
	payload = append(payload, '\n')

	cs.mu.Lock()
	defer cs.mu.Unlock()
	for conn := range cs.conns {
		if _, err := conn.Write(payload); err != nil {
			conn.Close()
			delete(cs.conns, conn)
		}
	}
}

// Stop unsubscribes from the bus, closes the listener and every live
// connection, and removes the socket file.
func (cs *ChangeStream) Stop() error {
	cs.sup.Bus().Unsubscribe(cs.busID)

	if cs.listener != nil {
		_ = cs.listener.Close()
	}

	cs.mu.Lock()
	for conn := range cs.conns {
		conn.Close()
		delete(cs.conns, conn)
	}
	cs.mu.Unlock()

	// Closing the listener normally unlinks the socket already.
	if err := os.Remove(cs.sockPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
