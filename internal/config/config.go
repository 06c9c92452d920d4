// Package config implements the daemon's configuration model (spec.md
// component C1): loading, validating, and normalizing the set of
// locally-declared collections shared with the external CLI.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/collaborator-ai/seedvault-sub000/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = defaultConfigPath()
)

func defaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "seedvault", "config.json")
}

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// Config is the set {server_url, auth_token, username, collections}
// declared in spec.md §3. Collections preserve file order.
type Config struct {
	ServerURL   string       `json:"server"`
	AuthToken   string       `json:"token"`
	Username    string       `json:"username"`
	Collections []Collection `json:"collections"`

	// Path is where this config was loaded from / will be saved to. Not
	// persisted as part of the JSON document itself.
	Path string `json:"-"`
}

// LogValue redacts the auth token so a Config can be logged safely.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("server", c.ServerURL),
		slog.String("username", c.Username),
		slog.Bool("token_set", c.AuthToken != ""),
		slog.Int("collections", len(c.Collections)),
		slog.String("path", c.Path),
	)
}

// Validate checks the ambient fields of the config. It does not
// normalize collections; callers should call Normalize explicitly.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidURL, c.ServerURL)
	}
	if c.Username == "" || !usernameRegex.MatchString(c.Username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, c.Username)
	}
	for _, col := range c.Collections {
		if err := ValidateName(col.Name); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Collections = make([]Collection, len(c.Collections))
	copy(cp.Collections, c.Collections)
	return &cp
}

// Load reads and parses the configuration at path, then normalizes it.
// It returns the pruned collections so the caller can report them to
// the operator (spec.md §4.1).
func Load(path string) (*Config, []Collection, error) {
	resolved, err := utils.ResolvePath(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrConfigMalformed, err)
	}

	f, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrConfigMissing, resolved)
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrConfigMalformed, err)
	}
	defer f.Close()

	return LoadFromReader(resolved, f)
}

// LoadFromReader parses configuration JSON from reader, tagging the
// result with path, and normalizes it.
func LoadFromReader(path string, reader io.Reader) (*Config, []Collection, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrConfigMalformed, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrConfigMalformed, err)
	}
	cfg.Path = path

	normalized, removed := Normalize(&cfg)
	return normalized, removed, nil
}

// Save atomically writes cfg to cfg.Path, creating parent directories
// as needed.
func (c *Config) Save() error {
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return utils.AtomicWriteFile(c.Path, data, 0o600)
}

// Normalize is the idempotent pruner described in spec.md §4.1: it
// deduplicates collection paths (keeping the first occurrence),
// resolves ancestor/descendant overlaps in favor of the ancestor, and
// drops duplicate names. It returns a new Config and the list of
// collections that were pruned, in the order they were dropped.
func Normalize(cfg *Config) (*Config, []Collection) {
	out := cfg.Clone()
	out.Collections = nil

	var removed []Collection
	names := make(map[string]bool)

	for _, candidate := range cfg.Collections {
		resolvedPath, err := resolveCollectionPath(candidate.Path)
		if err != nil {
			removed = append(removed, candidate)
			continue
		}
		candidate.Path = resolvedPath

		if names[candidate.Name] {
			removed = append(removed, candidate)
			continue
		}

		duplicateOrDescendant := false
		for _, kept := range out.Collections {
			if kept.Path == candidate.Path || utils.IsAncestor(kept.Path, candidate.Path) {
				duplicateOrDescendant = true
				break
			}
		}
		if duplicateOrDescendant {
			removed = append(removed, candidate)
			continue
		}

		// Candidate is an ancestor of (or equal to) any retained entries:
		// those entries are now redundant children; adopt the candidate
		// and drop them.
		kept := out.Collections[:0]
		for _, existing := range out.Collections {
			if utils.IsAncestor(candidate.Path, existing.Path) {
				removed = append(removed, existing)
				delete(names, existing.Name)
				continue
			}
			kept = append(kept, existing)
		}
		out.Collections = kept

		out.Collections = append(out.Collections, candidate)
		names[candidate.Name] = true
	}

	return out, removed
}
