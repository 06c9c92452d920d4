package fswatch

import (
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreLines encode the path-segment rules from spec.md §4.4: any
// relative segment beginning with "." (the collection root itself is
// never checked against this, since matching always starts from the
// relative path under the root), any segment named "node_modules", and
// any segment containing ".tmp.".
var ignoreLines = []string{
	"**/.*",
	"**/.*/**",
	"**/node_modules/**",
	"**/*.tmp.*/**",
	"**/*.tmp.*",
}

func newIgnoreMatcher() *gitignore.GitIgnore {
	return gitignore.CompileIgnoreLines(ignoreLines...)
}

// shouldIgnore reports whether relPath (relative to a collection root,
// using forward slashes) should be excluded from sync, per the
// relative-segment rule spec.md's Design Notes adopt explicitly over the
// absolute-path variant.
func shouldIgnore(matcher *gitignore.GitIgnore, relPath string) bool {
	relPath = strings.TrimPrefix(relPath, "/")
	if relPath == "" {
		return false
	}
	return matcher.MatchesPath(relPath)
}
