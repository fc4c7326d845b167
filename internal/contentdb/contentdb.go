// Package contentdb implements the Content Database: the server-side
// (and priming-side) index that maps a file's identity to its content
// fingerprint and back, so the wire protocol can decide whether a file
// needs to be sent at all, sent as a delta, or sent in full.
package contentdb

import (
	"sync"

	"github.com/eacopy/eacopy/internal/fingerprint"
)

// Key is the File Identity Key: enough information to recognize "this
// is probably the same content" without reading the file.
type Key struct {
	Name    string
	ModTime int64
	Size    int64
}

// Record is a File Record: a Key together with the content Fingerprint
// it last resolved to, and its position in insertion history (used for
// garbage collection ordering).
type Record struct {
	Key     Key
	FP      fingerprint.Fingerprint
	HistPos int
}

// DB is the content database. All three indices — byKey, byFingerprint,
// and history — live behind a single mutex. Reads take the same lock as
// writes: the database is small (one process's recent working set) and
// the actual bottleneck is disk/network I/O, which this lock is never
// held across.
type DB struct {
	mu            sync.Mutex
	byKey         map[Key]*Record
	byFingerprint map[fingerprint.Fingerprint][]*Record
	history       []*Record
	maxHistory    int

	primeWG sync.WaitGroup
	primes  []*primeDir
}

// New returns an empty Content Database. maxHistory bounds how many
// records GarbageCollect retains before evicting the oldest; 0 means
// unbounded.
func New(maxHistory int) *DB {
	return &DB{
		byKey:         make(map[Key]*Record),
		byFingerprint: make(map[fingerprint.Fingerprint][]*Record),
		maxHistory:    maxHistory,
	}
}

// GetByKey looks up a Record by its exact File Identity Key — the fast
// path for "have I seen this exact name/size/mtime before".
func (db *DB) GetByKey(k Key) (Record, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	r, ok := db.byKey[k]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// GetByFingerprint returns any Record sharing the given content
// fingerprint, preferring the most recently inserted one. Used for
// cross-name dedup: two files with different names/paths but identical
// bytes.
func (db *DB) GetByFingerprint(fp fingerprint.Fingerprint) (Record, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	recs := db.byFingerprint[fp]
	if len(recs) == 0 {
		return Record{}, false
	}
	return *recs[len(recs)-1], true
}

// MaxDeltaSizeRatio bounds delta reference selection: a candidate more
// than this many times the target's size costs more to read than the
// delta saves, so it is not considered at all.
const MaxDeltaSizeRatio = 4

// FindDeltaReference returns a Record suitable as a delta basis for the
// file identified by selfKey and selfFP: a previous generation of the
// same Name whose size is within the ratio window. Among candidates the
// largest wins (more basis bytes to match against); equal sizes break
// toward the most recently inserted. A file is never its own delta
// reference: a zero-size delta would mask what is actually a re-upload.
func (db *DB) FindDeltaReference(selfKey Key, selfFP fingerprint.Fingerprint) (Record, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var best *Record
	for i := len(db.history) - 1; i >= 0; i-- {
		r := db.history[i]
		if r.Key.Name != selfKey.Name {
			continue
		}
		if r.Key == selfKey && r.FP == selfFP {
			continue // never self-reference
		}
		if r.Key.Size > selfKey.Size*MaxDeltaSizeRatio {
			continue
		}
		// Walking newest to oldest, so strict > keeps the newer record
		// when two generations share a size.
		if best == nil || r.Key.Size > best.Key.Size {
			best = r
		}
	}
	if best == nil {
		return Record{}, false
	}
	return *best, true
}

// Insert records a new Key -> Fingerprint association, replacing any
// existing record for the same Key. Insert must never be called while
// holding a lock on disk or network I/O (spec's "never hold the
// database lock across I/O" invariant) — callers compute the
// fingerprint first, then call Insert with the result in hand.
func (db *DB) Insert(k Key, fp fingerprint.Fingerprint) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if old, ok := db.byKey[k]; ok {
		db.removeFromFingerprintIndexLocked(old)
	}

	r := &Record{Key: k, FP: fp, HistPos: len(db.history)}
	db.byKey[k] = r
	db.byFingerprint[fp] = append(db.byFingerprint[fp], r)
	db.history = append(db.history, r)

	if db.maxHistory > 0 && len(db.history) > db.maxHistory {
		db.garbageCollectLocked(len(db.history) - db.maxHistory)
	}
}

// RemoveByKey deletes the record for k, if any.
func (db *DB) RemoveByKey(k Key) {
	db.mu.Lock()
	defer db.mu.Unlock()

	r, ok := db.byKey[k]
	if !ok {
		return
	}
	delete(db.byKey, k)
	db.removeFromFingerprintIndexLocked(r)
	r.Key = Key{} // mark tombstoned; history slot left in place to preserve HistPos ordering
}

func (db *DB) removeFromFingerprintIndexLocked(r *Record) {
	bucket := db.byFingerprint[r.FP]
	for i, candidate := range bucket {
		if candidate == r {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(db.byFingerprint, r.FP)
	} else {
		db.byFingerprint[r.FP] = bucket
	}
}

// GarbageCollect evicts the n oldest records (by insertion order),
// regardless of maxHistory. Returns the number actually evicted.
func (db *DB) GarbageCollect(n int) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.garbageCollectLocked(n)
}

func (db *DB) garbageCollectLocked(n int) int {
	evicted := 0
	for evicted < n && len(db.history) > 0 {
		oldest := db.history[0]
		db.history = db.history[1:]
		if oldest.Key != (Key{}) {
			if cur, ok := db.byKey[oldest.Key]; ok && cur == oldest {
				delete(db.byKey, oldest.Key)
			}
			db.removeFromFingerprintIndexLocked(oldest)
		}
		evicted++
	}
	return evicted
}

// Len returns the number of live (non-tombstoned) records.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.byKey)
}
