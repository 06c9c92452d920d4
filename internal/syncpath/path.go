// Package syncpath defines ServerPath, the normalized
// "<collection-name>/<relative-posix-path>" identifier used throughout
// the daemon to address a file on the remote server.
package syncpath

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrInvalid is returned by New when the resulting path violates one of
// the ServerPath invariants from spec.md §3.
var ErrInvalid = errors.New("syncpath: invalid server path")

// Path is a string of the form "<collection-name>/<relative-posix-path>".
// It always uses forward slashes, never begins with "/", contains no
// ".." segments, no "\\", no "//", and ends in ".md".
type Path string

// New builds a Path from a collection name and a relative filesystem
// path (using the host OS separator), validating the result.
func New(collectionName, relPath string) (Path, error) {
	rel := filepath.ToSlash(relPath)
	rel = strings.TrimPrefix(rel, "/")

	p := Path(collectionName + "/" + rel)
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// Validate checks p against the ServerPath invariants.
func (p Path) Validate() error {
	s := string(p)

	if s == "" || strings.HasPrefix(s, "/") {
		return ErrInvalid
	}
	if strings.Contains(s, "\\") || strings.Contains(s, "//") {
		return ErrInvalid
	}
	if !strings.HasSuffix(s, ".md") {
		return ErrInvalid
	}

	segments := strings.Split(s, "/")
	for _, seg := range segments {
		if seg == "" || seg == ".." {
			return ErrInvalid
		}
	}

	return nil
}

// Collection returns the leading collection-name segment of p.
func (p Path) Collection() string {
	s := string(p)
	if idx := strings.Index(s, "/"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// Relative returns the path with the collection-name segment stripped.
func (p Path) Relative() string {
	s := string(p)
	if idx := strings.Index(s, "/"); idx >= 0 {
		return s[idx+1:]
	}
	return ""
}
