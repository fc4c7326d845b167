package contentdb

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eacopy/eacopy/internal/fingerprint"
)

// primeDir tracks one directory registered for background priming: a
// pre-scan that populates the database with records for files already
// present, so the first real session against that tree gets dedup/delta
// hits instead of treating everything as new.
type primeDir struct {
	path     string
	rootLen  int
	done     atomic.Bool
	scanned  atomic.Int64
	indexed  atomic.Int64
}

// Prime registers dir for background priming. It does not block; call
// RunPriming to actually scan it.
func (db *DB) Prime(dir string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.primes = append(db.primes, &primeDir{path: dir, rootLen: len(dir)})
}

// RunPriming scans every registered prime directory on a small worker
// pool, hashing each regular file and inserting it into the database.
// Enumeration only — no copy decision is made during priming.
func (db *DB) RunPriming(ctx context.Context) {
	db.mu.Lock()
	dirs := append([]*primeDir(nil), db.primes...)
	db.mu.Unlock()

	for _, pd := range dirs {
		db.primeWG.Add(1)
		go func(pd *primeDir) {
			defer db.primeWG.Done()
			db.primeOne(ctx, pd)
		}(pd)
	}
}

func (db *DB) primeOne(ctx context.Context, pd *primeDir) {
	defer pd.done.Store(true)

	workers := min(runtime.NumCPU(), 4)
	paths := make(chan string, workers*4)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range paths {
				db.primeFile(p, pd)
			}
		}()
	}

	_ = filepath.WalkDir(pd.path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort priming, one bad entry shouldn't abort the walk
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		pd.scanned.Add(1)
		paths <- path
		return nil
	})

	close(paths)
	wg.Wait()
}

func (db *DB) primeFile(path string, pd *primeDir) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		return
	}
	fp, err := fingerprint.Of(f)
	f.Close()
	if err != nil {
		return
	}

	rel, err := filepath.Rel(pd.path[:pd.rootLen], path)
	if err != nil {
		rel = path
	}

	db.Insert(Key{Name: rel, ModTime: info.ModTime().UnixNano(), Size: info.Size()}, fp)
	pd.indexed.Add(1)
}

// PrimeUpdate reports, for each registered prime directory in
// registration order, how many files have been scanned and indexed so
// far, and whether the scan has completed.
type PrimeUpdate struct {
	Path     string
	Scanned  int64
	Indexed  int64
	Complete bool
}

// PrimeStatus returns the current progress of every registered prime
// directory without blocking.
func (db *DB) PrimeStatus() []PrimeUpdate {
	db.mu.Lock()
	dirs := append([]*primeDir(nil), db.primes...)
	db.mu.Unlock()

	updates := make([]PrimeUpdate, len(dirs))
	for i, pd := range dirs {
		updates[i] = PrimeUpdate{
			Path:     pd.path,
			Scanned:  pd.scanned.Load(),
			Indexed:  pd.indexed.Load(),
			Complete: pd.done.Load(),
		}
	}
	return updates
}

// PrimeWait blocks until every registered prime directory has finished
// scanning, or ctx is canceled.
func (db *DB) PrimeWait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		db.primeWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
