package supervisor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/collaborator-ai/seedvault-sub000/internal/utils"
)

const healthFileName = "daemon-health.json"

// SyncStatus is the snapshot written to the health file and served from
// the local API's /status endpoint, per spec.md §4.8/§6.
type SyncStatus struct {
	Running            bool      `json:"running"`
	ServerReachable    bool      `json:"server_reachable"`
	CollectionsWatched int       `json:"collections_watched"`
	WatcherState       string    `json:"watcher_state"`
	QueuePending       int       `json:"queue_pending"`
	LastSyncAt         time.Time `json:"last_sync_at,omitempty"`
	LastReconcileAt    time.Time `json:"last_reconcile_at,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`

	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
}

// healthFilePath returns the path of the health snapshot file, sitting
// alongside the config file per spec.md §6.
func healthFilePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), healthFileName)
}

// writeHealthSnapshot atomically writes status to the health file next to
// configPath.
func writeHealthSnapshot(configPath string, status SyncStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(healthFilePath(configPath), data, 0o600)
}

// readHealthSnapshot reads an existing health file, if any.
func readHealthSnapshot(configPath string) (*SyncStatus, error) {
	data, err := os.ReadFile(healthFilePath(configPath))
	if err != nil {
		return nil, err
	}
	var status SyncStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
