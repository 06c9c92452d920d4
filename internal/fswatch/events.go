package fswatch

import "github.com/collaborator-ai/seedvault-sub000/internal/syncpath"

// FileEventKind enumerates the kinds of change the watcher reports.
type FileEventKind int

const (
	Added FileEventKind = iota
	Changed
	Removed
)

func (k FileEventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// FileEvent is emitted whenever a watched collection's content changes.
// ServerPath is always populated for an emitted event; events that don't
// map onto a declared collection or a .md file are dropped before
// emission rather than carrying an empty ServerPath (spec.md §3).
type FileEvent struct {
	Kind       FileEventKind
	LocalPath  string
	ServerPath syncpath.Path
}
