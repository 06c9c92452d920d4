package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned by coexistenceCheck and by acquireLock
// (the flock-based lock) when another instance holds it.
var ErrAlreadyRunning = errors.New("supervisor: another sync engine is already running")

const pidFileName = "daemon.pid"

func pidFilePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), pidFileName)
}

// coexistenceCheck implements spec.md §4.7's coexistence check: if the
// existing health file shows running=true and was updated within
// 3×healthInterval of now, another instance is presumed alive.
func coexistenceCheck(configPath string) error {
	status, err := readHealthSnapshot(configPath)
	if err != nil {
		return nil
	}
	if status.Running && time.Since(status.UpdatedAt) < 3*healthInterval {
		return ErrAlreadyRunning
	}
	return nil
}

// acquireLock takes an advisory flock on the PID file, grounded on the
// teacher's Workspace.Lock/Unlock (internal/client/workspace/workspace.go),
// applied here to a PID file instead of a workspace root since this daemon
// has no single workspace directory. A stale lock (process no longer
// alive) is never assumed by flock itself — the OS releases it when the
// holding process exits, so TryLock failing here always means a live
// holder.
type pidLock struct {
	fl   *flock.Flock
	path string
}

func acquireLock(configPath string) (*pidLock, error) {
	path := pidFilePath(configPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("supervisor: failed to lock pid file: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("supervisor: failed to write pid file: %w", err)
	}

	return &pidLock{fl: fl, path: path}, nil
}

func (l *pidLock) Release() error {
	if !l.fl.Locked() {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	return os.Remove(l.path)
}
