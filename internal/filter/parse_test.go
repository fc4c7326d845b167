package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadRules(t *testing.T, content string) *Chain {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	c := NewChain()
	require.NoError(t, c.LoadFile(path))
	return c
}

func TestLoadFileRules(t *testing.T) {
	c := loadRules(t, `
# keep sources, drop logs and the build tree
+ *.go
- *.log
build/
`)

	assert.True(t, c.Match("main.go", false, 1))
	assert.False(t, c.Match("debug.log", false, 1))
	assert.False(t, c.Match("build", true, 0), "a bare line is an exclude")
	assert.True(t, c.Match("notes.md", false, 1))
}

func TestLoadFileResetDirective(t *testing.T) {
	c := loadRules(t, `
- *.log
!
- *.tmp
`)

	// The "!" wiped the log exclude; only the tmp rule survives.
	assert.True(t, c.Match("debug.log", false, 1))
	assert.False(t, c.Match("junk.tmp", false, 1))
}

func TestLoadFileReportsLineNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules")
	require.NoError(t, os.WriteFile(path, []byte("+ ok.txt\n- [\n"), 0o644))

	err := NewChain().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")
}

func TestLoadFileMissing(t *testing.T) {
	err := NewChain().LoadFile(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
