package obs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateMerge(t *testing.T) {
	var global Aggregate

	a := &Aggregate{}
	a.Record(Read, 10*time.Millisecond)
	a.Record(Read, 5*time.Millisecond)
	a.FilesCopied = 3
	a.BytesWritten = 1024

	b := &Aggregate{}
	b.Record(Read, 1*time.Millisecond)
	b.FilesSkipped = 2

	global.Merge(a)
	global.Merge(b)

	snap := global.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Read, snap[0].Class)
	assert.Equal(t, int64(3), snap[0].Count)
	assert.Equal(t, 16*time.Millisecond, snap[0].Duration)
	assert.Equal(t, int64(3), global.FilesCopied)
	assert.Equal(t, int64(2), global.FilesSkipped)
	assert.Equal(t, int64(1024), global.BytesWritten)
}

func TestAggregateSnapshotSkipsUnused(t *testing.T) {
	var a Aggregate
	a.Record(Write, time.Second)
	snap := a.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Write, snap[0].Class)
}

func TestErrorCacheWraps(t *testing.T) {
	c := NewErrorCache(3)
	c.Add("a")
	c.Add("b")
	c.Add("c")
	c.Add("d")

	assert.Equal(t, []string{"b", "c", "d"}, c.Recent())
}

func TestErrorCachePartial(t *testing.T) {
	c := NewErrorCache(5)
	c.Add("x")
	c.Add("y")
	assert.Equal(t, []string{"x", "y"}, c.Recent())
}
