package platform

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPair(t *testing.T, content []byte) (src, dst *os.File) {
	t.Helper()
	dir := t.TempDir()

	srcPath := filepath.Join(dir, "src.bin")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))
	src, err := os.Open(srcPath)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	dst, err = os.OpenFile(filepath.Join(dir, "dst.bin"), os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { dst.Close() })
	return src, dst
}

func TestCopyWholeFile(t *testing.T) {
	data := bytes.Repeat([]byte("platform copy payload "), 64*1024)
	src, dst := openPair(t, data)

	n, method, err := Copy(src, dst, int64(len(data)), nil)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), n)
	assert.NotEqual(t, "unknown", method.String())

	got, err := os.ReadFile(dst.Name())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCopyEmptyFile(t *testing.T) {
	src, dst := openPair(t, nil)

	n, _, err := Copy(src, dst, 0, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopyStopsAtRequestedSize(t *testing.T) {
	data := []byte("0123456789")
	src, dst := openPair(t, data)

	n, _, err := Copy(src, dst, 4, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	got, err := os.ReadFile(dst.Name())
	require.NoError(t, err)
	assert.Equal(t, []byte("0123"), got)
}

func TestCopyTruncatedSourceEndsAtEOF(t *testing.T) {
	data := []byte("short")
	src, dst := openPair(t, data)

	// size overstates the file: the copy ends at EOF, no error.
	n, _, err := Copy(src, dst, 1000, nil)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), n)
}

func TestReadWriteCopyUsesCallerBuffer(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 10_000)
	src, dst := openPair(t, data)

	// A buffer smaller than the file forces multiple loop iterations.
	buf := make([]byte, 512)
	n, err := readWriteCopy(src, dst, int64(len(data)), buf)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), n)

	got, err := os.ReadFile(dst.Name())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMethodString(t *testing.T) {
	assert.Equal(t, "read_write", ReadWrite.String())
	assert.Equal(t, "copy_file_range", CopyRange.String())
	assert.Equal(t, "sendfile", Sendfile.String())
}
