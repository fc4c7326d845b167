package contentdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eacopy/eacopy/internal/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	db := New(0)
	db.Insert(Key{Name: "a.txt", ModTime: 100, Size: 5}, fingerprint.OfBytes([]byte("aaaaa")))
	db.Insert(Key{Name: "dir/b.txt", ModTime: 200, Size: 6}, fingerprint.OfBytes([]byte("bbbbbb")))

	path := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, db.WriteFile(path))

	restored := New(0)
	require.NoError(t, restored.ReadFile(path))

	assert.Equal(t, db.Len(), restored.Len())

	got, ok := restored.GetByKey(Key{Name: "a.txt", ModTime: 100, Size: 5})
	require.True(t, ok)
	assert.Equal(t, fingerprint.OfBytes([]byte("aaaaa")), got.FP)

	got, ok = restored.GetByKey(Key{Name: "dir/b.txt", ModTime: 200, Size: 6})
	require.True(t, ok)
	assert.Equal(t, fingerprint.OfBytes([]byte("bbbbbb")), got.FP)
}

func TestSnapshotSkipsTombstones(t *testing.T) {
	db := New(0)
	k := Key{Name: "gone.txt", ModTime: 1, Size: 1}
	db.Insert(k, fingerprint.OfBytes([]byte("x")))
	db.RemoveByKey(k)

	path := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, db.WriteFile(path))

	restored := New(0)
	require.NoError(t, restored.ReadFile(path))
	assert.Equal(t, 0, restored.Len())
}

func TestReadFileRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.db")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot file at all"), 0o644))

	db := New(0)
	err := db.ReadFile(path)
	assert.Error(t, err)
}
