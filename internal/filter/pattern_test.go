package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPattern(t *testing.T, spec string) *pattern {
	t.Helper()
	p, err := parsePattern(spec)
	require.NoError(t, err)
	return p
}

func TestUnanchoredMatchesBasenameAtAnyDepth(t *testing.T) {
	p := mustPattern(t, "*.tmp")
	assert.False(t, p.anchored)

	assert.True(t, p.match("scratch.tmp", false))
	assert.True(t, p.match("deep/nested/scratch.tmp", false))
	assert.False(t, p.match("scratch.tmp.bak", false))
	assert.False(t, p.match("scratch.txt", false))
}

func TestSlashAnchorsAtRoot(t *testing.T) {
	p := mustPattern(t, "/top.txt")
	assert.True(t, p.anchored)
	assert.True(t, p.match("top.txt", false))
	assert.False(t, p.match("sub/top.txt", false))

	p = mustPattern(t, "docs/*.md")
	assert.True(t, p.anchored)
	assert.True(t, p.match("docs/guide.md", false))
	assert.False(t, p.match("other/docs/guide.md", false))
	assert.False(t, p.match("docs/sub/guide.md", false), "* does not cross a separator")
}

func TestDoubleStarSpansComponents(t *testing.T) {
	p := mustPattern(t, "**/vendor/**")
	assert.True(t, p.match("vendor/lib/a.go", false))
	assert.True(t, p.match("x/y/vendor/z", false))
	assert.False(t, p.match("vendored/file", false))

	tail := mustPattern(t, "cmd/**/main.go")
	assert.True(t, tail.match("cmd/main.go", false), "** may span zero components")
	assert.True(t, tail.match("cmd/eacopy/main.go", false))
	assert.False(t, tail.match("cmd/eacopy/serve.go", false))
}

func TestDirOnlyNeedsDirectory(t *testing.T) {
	p := mustPattern(t, "cache/")
	assert.True(t, p.dirOnly)
	assert.True(t, p.match("cache", true))
	assert.False(t, p.match("cache", false))
}

func TestCharacterClassSegments(t *testing.T) {
	p := mustPattern(t, "shard-[0-9]")
	assert.True(t, p.match("shard-3", false))
	assert.False(t, p.match("shard-x", false))
}

func TestParseRejectsBadSpecs(t *testing.T) {
	for _, spec := range []string{"", "/", "[", "a/[b"} {
		_, err := parsePattern(spec)
		assert.Error(t, err, "spec %q", spec)
	}
}
