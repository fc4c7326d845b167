package contentdb

import (
	"testing"

	"github.com/eacopy/eacopy/internal/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGetByKey(t *testing.T) {
	db := New(0)
	k := Key{Name: "a.txt", ModTime: 1, Size: 10}
	fp := fingerprint.OfBytes([]byte("hello"))

	db.Insert(k, fp)

	got, ok := db.GetByKey(k)
	require.True(t, ok)
	assert.Equal(t, fp, got.FP)
}

func TestGetByFingerprintCrossName(t *testing.T) {
	db := New(0)
	fp := fingerprint.OfBytes([]byte("same bytes"))
	db.Insert(Key{Name: "a.txt", ModTime: 1, Size: 5}, fp)
	db.Insert(Key{Name: "b.txt", ModTime: 2, Size: 5}, fp)

	got, ok := db.GetByFingerprint(fp)
	require.True(t, ok)
	assert.Equal(t, fp, got.FP)
}

func TestInsertReplacesExistingKey(t *testing.T) {
	db := New(0)
	k := Key{Name: "a.txt", ModTime: 1, Size: 5}
	fp1 := fingerprint.OfBytes([]byte("v1"))
	fp2 := fingerprint.OfBytes([]byte("v2"))

	db.Insert(k, fp1)
	db.Insert(k, fp2)

	got, ok := db.GetByKey(k)
	require.True(t, ok)
	assert.Equal(t, fp2, got.FP)

	_, ok = db.GetByFingerprint(fp1)
	assert.False(t, ok, "old fingerprint bucket should be cleaned up")
}

func TestFindDeltaReferenceExcludesSelf(t *testing.T) {
	db := New(0)
	k := Key{Name: "a.txt", ModTime: 1, Size: 5}
	fp := fingerprint.OfBytes([]byte("only version"))
	db.Insert(k, fp)

	_, ok := db.FindDeltaReference(k, fp)
	assert.False(t, ok, "a file must never be its own delta reference")
}

func TestFindDeltaReferencePrefersSameName(t *testing.T) {
	db := New(0)
	oldKey := Key{Name: "a.txt", ModTime: 1, Size: 5}
	oldFP := fingerprint.OfBytes([]byte("v1"))
	db.Insert(oldKey, oldFP)

	newKey := Key{Name: "a.txt", ModTime: 2, Size: 6}
	newFP := fingerprint.OfBytes([]byte("v2"))

	ref, ok := db.FindDeltaReference(newKey, newFP)
	require.True(t, ok)
	assert.Equal(t, oldFP, ref.FP)
}

func TestFindDeltaReferencePicksLargestInWindow(t *testing.T) {
	db := New(0)
	db.Insert(Key{Name: "a.bin", ModTime: 1, Size: 100}, fingerprint.OfBytes([]byte("gen1")))
	db.Insert(Key{Name: "a.bin", ModTime: 2, Size: 400}, fingerprint.OfBytes([]byte("gen2")))
	db.Insert(Key{Name: "a.bin", ModTime: 3, Size: 5000}, fingerprint.OfBytes([]byte("gen3")))

	// Target of 150 bytes: the window admits gen1 and gen2 (<= 600) but
	// not gen3; gen2 is the largest admissible basis.
	target := Key{Name: "a.bin", ModTime: 4, Size: 150}
	ref, ok := db.FindDeltaReference(target, fingerprint.OfBytes([]byte("gen4")))
	require.True(t, ok)
	assert.Equal(t, int64(400), ref.Key.Size)
	assert.Equal(t, fingerprint.OfBytes([]byte("gen2")), ref.FP)
}

func TestFindDeltaReferenceEqualSizeBreaksToNewest(t *testing.T) {
	db := New(0)
	older := fingerprint.OfBytes([]byte("older"))
	newer := fingerprint.OfBytes([]byte("newer"))
	db.Insert(Key{Name: "a.bin", ModTime: 1, Size: 200}, older)
	db.Insert(Key{Name: "a.bin", ModTime: 2, Size: 200}, newer)

	target := Key{Name: "a.bin", ModTime: 3, Size: 180}
	ref, ok := db.FindDeltaReference(target, fingerprint.OfBytes([]byte("v3")))
	require.True(t, ok)
	assert.Equal(t, newer, ref.FP)
}

func TestFindDeltaReferenceRejectsOversized(t *testing.T) {
	db := New(0)
	db.Insert(Key{Name: "a.bin", ModTime: 1, Size: 5000}, fingerprint.OfBytes([]byte("huge")))

	target := Key{Name: "a.bin", ModTime: 2, Size: 14}
	_, ok := db.FindDeltaReference(target, fingerprint.OfBytes([]byte("tiny")))
	assert.False(t, ok, "a reference beyond the size window is worse than no reference")
}

func TestRemoveByKey(t *testing.T) {
	db := New(0)
	k := Key{Name: "a.txt", ModTime: 1, Size: 5}
	fp := fingerprint.OfBytes([]byte("data"))
	db.Insert(k, fp)

	db.RemoveByKey(k)

	_, ok := db.GetByKey(k)
	assert.False(t, ok)
	_, ok = db.GetByFingerprint(fp)
	assert.False(t, ok)
	assert.Equal(t, 0, db.Len())
}

func TestGarbageCollectEvictsOldest(t *testing.T) {
	db := New(0)
	for i := range 5 {
		k := Key{Name: string(rune('a' + i)), ModTime: int64(i), Size: 1}
		db.Insert(k, fingerprint.OfBytes([]byte{byte(i)}))
	}
	assert.Equal(t, 5, db.Len())

	evicted := db.GarbageCollect(2)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 3, db.Len())

	_, ok := db.GetByKey(Key{Name: "a", ModTime: 0, Size: 1})
	assert.False(t, ok, "oldest record should have been evicted")
	_, ok = db.GetByKey(Key{Name: "e", ModTime: 4, Size: 1})
	assert.True(t, ok, "newest record should survive")
}

func TestMaxHistoryAutoEvicts(t *testing.T) {
	db := New(3)
	for i := range 5 {
		k := Key{Name: string(rune('a' + i)), ModTime: int64(i), Size: 1}
		db.Insert(k, fingerprint.OfBytes([]byte{byte(i)}))
	}
	assert.Equal(t, 3, db.Len())
}
