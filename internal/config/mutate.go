package config

import (
	"fmt"

	"github.com/collaborator-ai/seedvault-sub000/internal/utils"
)

// AddResult reports the outcome of AddCollection: the final collection
// name used (derived from the path basename when name was empty) and
// any child collections that were pruned because the new collection is
// their ancestor (spec.md §4.1, S6).
type AddResult struct {
	Name                    string
	RemovedChildCollections []Collection
}

// AddCollection resolves path, derives a name from its basename when
// name is empty, and returns a new Config with the collection added.
// All mutations are pure: cfg is never modified in place.
func AddCollection(cfg *Config, path string, name string) (*Config, AddResult, error) {
	resolvedPath, err := resolveCollectionPath(path)
	if err != nil {
		return nil, AddResult{}, err
	}

	if name == "" {
		name = deriveName(resolvedPath)
	}
	if err := ValidateName(name); err != nil {
		return nil, AddResult{}, err
	}

	out := cfg.Clone()

	for _, existing := range out.Collections {
		if existing.Path == resolvedPath {
			return nil, AddResult{}, fmt.Errorf("%w: %s", ErrAlreadyConfigured, resolvedPath)
		}
		if utils.IsAncestor(existing.Path, resolvedPath) {
			return nil, AddResult{}, fmt.Errorf("%w: %s is inside %q (%s)", ErrOverlapChild, resolvedPath, existing.Name, existing.Path)
		}
	}

	var removedChildren []Collection
	kept := out.Collections[:0]
	for _, existing := range out.Collections {
		if utils.IsAncestor(resolvedPath, existing.Path) {
			removedChildren = append(removedChildren, existing)
			continue
		}
		kept = append(kept, existing)
	}
	out.Collections = kept

	for _, existing := range out.Collections {
		if existing.Name == name {
			return nil, AddResult{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}

	out.Collections = append(out.Collections, Collection{Name: name, Path: resolvedPath})

	return out, AddResult{Name: name, RemovedChildCollections: removedChildren}, nil
}

// RemoveCollection returns a new Config with the collection named name
// removed, or ErrNotFound if no such collection exists.
func RemoveCollection(cfg *Config, name string) (*Config, error) {
	out := cfg.Clone()

	idx := -1
	for i, col := range out.Collections {
		if col.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	out.Collections = append(out.Collections[:idx:idx], out.Collections[idx+1:]...)
	return out, nil
}
