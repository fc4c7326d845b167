package ioprim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eacopy/eacopy/internal/obs"
)

func TestResolveAuto(t *testing.T) {
	assert.Equal(t, Buffered, resolve(Auto, 100))
	assert.Equal(t, Unbuffered, resolve(Auto, BufferThreshold))
	assert.Equal(t, Unbuffered, resolve(Auto, -1))
	assert.Equal(t, Unbuffered, resolve(Unbuffered, 1))
}

func TestCopyFileStaged(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))

	var stats obs.Aggregate
	ctx := NewCopyContext()
	n, err := CopyFile(src, dst, false, false, ctx, &stats)
	require.NoError(t, err)
	assert.EqualValues(t, 11, n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.NotZero(t, len(stats.Snapshot()))
}

func TestCopyFileFailIfExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("b"), 0o644))

	var stats obs.Aggregate
	_, err := CopyFile(src, dst, false, true, NewCopyContext(), &stats)
	require.Error(t, err)
}

func TestCreateLinkSameVolume(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	var stats obs.Aggregate
	err := CreateLink(existing, filepath.Join(dir, "b"), &stats)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "b"))
}

func TestEnsureDirectoryIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "c")

	var stats obs.Aggregate
	created, err := EnsureDirectory(target, true, false, &stats)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureDirectory(target, true, false, &stats)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureDirectoryReplacesSymlink(t *testing.T) {
	dir := t.TempDir()
	realDir := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(realDir, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(realDir, link))

	var stats obs.Aggregate
	created, err := EnsureDirectory(link, true, false, &stats)
	require.NoError(t, err)
	assert.True(t, created)

	fi, err := os.Lstat(link)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	assert.Zero(t, fi.Mode()&os.ModeSymlink)
}

func TestFindFirstNextFiltersDotEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("22"), 0o644))

	var stats obs.Aggregate
	finder, err := FindFirst(dir, &stats)
	require.NoError(t, err)
	defer finder.FindClose()

	var names []string
	for {
		name, _, ok, err := finder.FindNext()
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestSetMtimeRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	var stats obs.Aggregate
	w, err := OpenWrite(path, Unbuffered, false, false, true, false, &stats)
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, SetMtime(w, want, &stats))
	require.NoError(t, w.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, want, fi.ModTime(), time.Second)
}

func TestOverlappedSubmitWait(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0o644))

	var stats obs.Aggregate
	h, err := OpenRead(path, Unbuffered, true, true, &stats)
	require.NoError(t, err)
	defer h.Close()

	ov := NewOverlappedRead(h)
	buf := make([]byte, 6)
	hdl := ov.SubmitRead(buf)
	n, err := Wait(hdl)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcdef", string(buf))
}

func TestCopyFilePipelined(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	// Several buffers' worth, not buffer-aligned, so the ping-pong loop
	// crosses both full and short reads.
	data := make([]byte, 3*CopyBufferSize+12345)
	for i := range data {
		data[i] = byte(i * 31)
	}
	require.NoError(t, os.WriteFile(src, data, 0o644))

	var stats obs.Aggregate
	n, err := CopyFilePipelined(src, dst, NewCopyContext(), &stats)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
