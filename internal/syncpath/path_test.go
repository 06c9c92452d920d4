package syncpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BuildsNormalizedPath(t *testing.T) {
	p, err := New("notes", "sub/a.md")
	require.NoError(t, err)
	assert.Equal(t, Path("notes/sub/a.md"), p)
	assert.Equal(t, "notes", p.Collection())
	assert.Equal(t, "sub/a.md", p.Relative())
}

func TestNew_RejectsNonMarkdown(t *testing.T) {
	_, err := New("notes", "a.txt")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate_RejectsTraversal(t *testing.T) {
	assert.ErrorIs(t, Path("notes/../a.md").Validate(), ErrInvalid)
	assert.ErrorIs(t, Path("/notes/a.md").Validate(), ErrInvalid)
	assert.ErrorIs(t, Path("notes//a.md").Validate(), ErrInvalid)
	assert.ErrorIs(t, Path("notes\\a.md").Validate(), ErrInvalid)
	assert.NoError(t, Path("notes/a.md").Validate())
}
