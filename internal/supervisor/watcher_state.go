package supervisor

import "github.com/collaborator-ai/seedvault-sub000/internal/fswatch"

// StateUnknown is reported when no watcher has been built yet.
const StateUnknown = "unknown"

func watcherStateString(s fswatch.State) string {
	switch s {
	case fswatch.StateStarting:
		return "starting"
	case fswatch.StateReady:
		return "ready"
	case fswatch.StateClosed:
		return "closed"
	default:
		return StateUnknown
	}
}
