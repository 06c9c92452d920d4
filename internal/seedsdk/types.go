package seedsdk

import "time"

const (
	headerUserAgent   = "User-Agent"
	headerOriginCtime = "X-Origin-Ctime"
	headerOriginMtime = "X-Origin-Mtime"

	// UserAgent identifies this daemon to the remote server.
	UserAgent = "seedvaultd/1.0"
)

// errorBody is the JSON shape servers are expected to return alongside a
// non-2xx status: {"error": "..."}.
type errorBody struct {
	Error string `json:"error"`
}

// PutFileOptions carries the optional origin timestamps sent with a PUT.
type PutFileOptions struct {
	OriginCtime *time.Time
	OriginMtime *time.Time
}

// RemoteFile is one entry of a list_files response.
type RemoteFile struct {
	Path        string     `json:"path"`
	Size        int64      `json:"size"`
	CreatedAt   time.Time  `json:"created_at"`
	ModifiedAt  time.Time  `json:"modified_at"`
	OriginMtime *time.Time `json:"origin_mtime,omitempty"`
}

// EffectiveMtime returns OriginMtime when present, falling back to
// ModifiedAt, matching the canonical origin-timestamp fallback rule used
// to decide whether a local file is already current on the server.
func (f RemoteFile) EffectiveMtime() time.Time {
	if f.OriginMtime != nil {
		return *f.OriginMtime
	}
	return f.ModifiedAt
}

// Contributor is an entry returned by ListContributors.
type Contributor struct {
	Username string `json:"username"`
}

// RemoteEventKind enumerates the SSE event names this client understands.
type RemoteEventKind string

const (
	RemoteEventFileUpdated RemoteEventKind = "file_updated"
	RemoteEventFileDeleted RemoteEventKind = "file_deleted"
)

// RemoteEvent is the decoded payload of a subscribed SSE event. Only the
// fields common to file_updated/file_deleted are surfaced; callers
// checking Kind know which fields are meaningful.
type RemoteEvent struct {
	Kind       RemoteEventKind `json:"-"`
	ID         string          `json:"id"`
	Username   string          `json:"contributor"`
	Path       string          `json:"path"`
	Size       int64           `json:"size,omitempty"`
	ModifiedAt time.Time       `json:"modifiedAt,omitempty"`
}
