package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyChain(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Empty())
	assert.True(t, c.Match("any/file.txt", false, 1024))
	assert.True(t, c.Match("any/dir", true, 0))
}

func TestFirstMatchWins(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("keep.log"))
	require.NoError(t, c.AddExclude("*.log"))

	assert.True(t, c.Match("keep.log", false, 1), "include listed first wins")
	assert.True(t, c.Match("sub/keep.log", false, 1))
	assert.False(t, c.Match("other.log", false, 1))
	assert.True(t, c.Match("other.txt", false, 1))

	// Reversed order: the blanket exclude shadows the include.
	rev := NewChain()
	require.NoError(t, rev.AddExclude("*.log"))
	require.NoError(t, rev.AddInclude("keep.log"))
	assert.False(t, rev.Match("keep.log", false, 1))
}

func TestDirOnlyRule(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("build/"))

	assert.False(t, c.Match("build", true, 0))
	assert.False(t, c.Match("sub/build", true, 0))
	assert.True(t, c.Match("build", false, 1), "a file named build is not a directory")
}

func TestIncludeOnlyGoFiles(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("**/*.go"))
	require.NoError(t, c.AddExclude("*"))

	assert.True(t, c.Match("main.go", false, 1))
	assert.True(t, c.Match("internal/engine/engine.go", false, 1))
	assert.False(t, c.Match("readme.md", false, 1))
}

func TestSizeBounds(t *testing.T) {
	c := NewChain()
	c.SetMinSize(100)
	c.SetMaxSize(1000)
	assert.False(t, c.Empty())

	assert.False(t, c.Match("small.bin", false, 99))
	assert.True(t, c.Match("fits.bin", false, 100))
	assert.True(t, c.Match("fits.bin", false, 1000))
	assert.False(t, c.Match("big.bin", false, 1001))

	// Directories are never size-filtered.
	assert.True(t, c.Match("dir", true, 0))
}

func TestSizeBoundsComposeWithRules(t *testing.T) {
	c := NewChain()
	c.SetMinSize(10)
	require.NoError(t, c.AddInclude("tiny.bin"))

	// Size bounds apply before rules: even an included name is dropped
	// when it is under the minimum.
	assert.False(t, c.Match("tiny.bin", false, 3))
	assert.True(t, c.Match("tiny.bin", false, 30))
}

func TestBadPatternSurfacesError(t *testing.T) {
	c := NewChain()
	assert.Error(t, c.AddExclude("["))
	assert.Error(t, c.AddExclude(""))
	assert.Error(t, c.AddExclude("/"))
}
