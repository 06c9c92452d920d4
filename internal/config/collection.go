package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/collaborator-ai/seedvault-sub000/internal/utils"
)

const maxNameLength = 63

var nameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Collection is the unit of sync: a local directory mirrored under the
// server-path prefix Name.
type Collection struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ValidateName reports whether name is a legal collection name: lowercase
// alphanumerics and hyphens, non-empty, at most 63 characters.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: %q (empty)", ErrInvalidName, name)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: %q (exceeds %d characters)", ErrInvalidName, name, maxNameLength)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q (must be lowercase alphanumerics and hyphens)", ErrInvalidName, name)
	}
	return nil
}

// deriveName builds a default collection name from the basename of path.
func deriveName(path string) string {
	base := strings.ToLower(filepath.Base(path))
	var b strings.Builder
	prevHyphen := false
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "collection"
	}
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

// resolveCollectionPath expands "~" and relative segments and cleans the
// result to an absolute path.
func resolveCollectionPath(path string) (string, error) {
	resolved, err := utils.ResolvePath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, err)
	}
	return resolved, nil
}
