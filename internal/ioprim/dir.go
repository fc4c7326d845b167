package ioprim

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/eacopy/eacopy/internal/obs"
)

// EnsureDirectory makes path (and any missing parents) exist, returning
// whether it actually created anything. expectExists short-circuits to
// a no-op when path already resolves to a directory; this check follows
// symlinks. Otherwise, if path itself is a symlink and replaceIfSymlink
// is true, the symlink is removed and a real directory created in its
// place; with replaceIfSymlink false it is left alone. Missing parents
// are handled by the same call with expectExists set, so a symlinked
// parent that resolves to a directory is kept as it is and only a
// dangling symlinked parent is replaced. EnsureDirectory keeps no record
// of the directories it creates; it only reports whether it created
// path, and the copy engine does not register them for rollback.
func EnsureDirectory(path string, replaceIfSymlink, expectExists bool, stats *obs.Aggregate) (created bool, err error) {
	defer stats.Timer(obs.Mkdir)()

	if expectExists {
		if fi, statErr := os.Stat(path); statErr == nil && fi.IsDir() {
			return false, nil
		}
	}

	if fi, lerr := os.Lstat(path); lerr == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			if !replaceIfSymlink {
				return false, nil
			}
			if rmErr := os.Remove(path); rmErr != nil {
				return false, fmt.Errorf("ioprim: remove symlink %s: %w", path, classify(rmErr))
			}
		} else if fi.IsDir() {
			return false, nil
		}
	}

	parent := filepath.Dir(path)
	if parent != path && parent != "." && parent != "/" {
		if _, perr := EnsureDirectory(parent, replaceIfSymlink, true, stats); perr != nil {
			return false, perr
		}
	}

	if mkErr := os.Mkdir(path, 0o755); mkErr != nil {
		if os.IsExist(mkErr) {
			return false, nil
		}
		return false, fmt.Errorf("ioprim: mkdir %s: %w", path, classify(mkErr))
	}
	return true, nil
}

// Finder enumerates a directory's entries lazily. "." and ".." never
// appear in its output.
type Finder struct {
	dir     string
	entries []os.DirEntry
	idx     int
	stats   *obs.Aggregate
}

// FindFirst opens dir for enumeration and positions the Finder before
// the first entry; call FindNext to retrieve it.
func FindFirst(dir string, stats *obs.Aggregate) (*Finder, error) {
	defer stats.Timer(obs.FindFile)()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ioprim: readdir %s: %w", dir, classify(err))
	}
	return &Finder{dir: dir, entries: entries, stats: stats}, nil
}

// FindNext returns the next (name, info) pair, or ok=false once
// exhausted. os.ReadDir never yields "." or "..", but the filter is
// explicit so the contract doesn't silently rest on that.
func (f *Finder) FindNext() (name string, info FileInfo, ok bool, err error) {
	defer f.stats.Timer(obs.FindFile)()
	for f.idx < len(f.entries) {
		e := f.entries[f.idx]
		f.idx++
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		fi, ierr := e.Info()
		if ierr != nil {
			return "", FileInfo{}, false, fmt.Errorf("ioprim: info %s: %w", e.Name(), classify(ierr))
		}
		return e.Name(), toFileInfo(e.Name(), fi), true, nil
	}
	return "", FileInfo{}, false, nil
}

// FindClose releases the Finder. Enumeration is fully buffered in
// memory by FindFirst (os.ReadDir's contract), so this is a no-op kept
// for symmetry with FindFirst/FindNext.
func (f *Finder) FindClose() {}
