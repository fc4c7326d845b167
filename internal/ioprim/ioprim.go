// Package ioprim implements the I/O primitives every higher layer
// (contentdb priming, the copy engine, the copy server) builds on:
// buffered/unbuffered file read/write, overlapped submit/wait I/O,
// directory enumeration, hardlink creation, and mtime manipulation.
//
// Every operation here records its timing into a caller-supplied
// *obs.Aggregate and reports failure through the sentinel errors below
// (errors.Is-compatible) — none silently swallow errors.
// The platform-specific fast-path copy strategies (copy_file_range and
// sendfile on Linux) live in internal/platform and are
// invoked from CopyFile; this package is the portable surface above them.
package ioprim

import (
	"errors"
	"os"
	"syscall"
)

// CopyBufferSize is the size of one CopyContext buffer and the
// threshold Auto buffering resolves against.
const CopyBufferSize = 8 << 20

// BufferThreshold is the single policy point Buffered/Unbuffered
// resolution uses: files at or above this size are opened unbuffered.
const BufferThreshold = CopyBufferSize

// Buffering selects how OpenRead/OpenWrite should access the file.
type Buffering int

const (
	// Auto resolves to Buffered or Unbuffered based on BufferThreshold.
	// Callers should pass Auto unless they specifically know which mode
	// they need.
	Auto Buffering = iota
	Buffered
	Unbuffered
)

// resolve turns Auto into a concrete choice given a file size hint.
// size < 0 means unknown, and is treated as large (Unbuffered) since the
// caller can't prove the file is small.
func resolve(b Buffering, size int64) Buffering {
	if b != Auto {
		return b
	}
	if size >= 0 && size < BufferThreshold {
		return Buffered
	}
	return Unbuffered
}

// Sentinel errors callers branch on for recovery decisions. Wrapped with
// fmt.Errorf("...: %w", ...) by callers so errors.Is still matches.
var (
	ErrSourceMissing    = errors.New("ioprim: source missing")
	ErrSharingViolation = errors.New("ioprim: sharing violation")
	ErrAccessDenied     = errors.New("ioprim: access denied")
	ErrCrossVolumeLink  = errors.New("ioprim: cross-volume link")
	ErrLinkLimit        = errors.New("ioprim: link count limit exceeded")
	ErrAlreadyExists    = errors.New("ioprim: destination already exists")
	ErrDiskFull         = errors.New("ioprim: disk full")
)

// classify maps a raw OS error to one of the sentinels above, for
// operations whose callers need to distinguish recoverable conditions
// from everything else. Unmatched errors are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return errors.Join(ErrSourceMissing, err)
	case errors.Is(err, os.ErrPermission):
		return errors.Join(ErrAccessDenied, err)
	case errors.Is(err, os.ErrExist):
		return errors.Join(ErrAlreadyExists, err)
	case errors.Is(err, syscall.ENOSPC):
		return errors.Join(ErrDiskFull, err)
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ETXTBSY):
		return errors.Join(ErrSharingViolation, err)
	default:
		return err
	}
}

// FileInfo is the subset of file metadata the engine and database care
// about: enough to build a File Identity Key without re-stating the
// whole os.FileInfo interface at every call site.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime int64 // UnixNano
	IsDir   bool
	Mode    os.FileMode
}

func toFileInfo(name string, fi os.FileInfo) FileInfo {
	return FileInfo{
		Name:    name,
		Size:    fi.Size(),
		ModTime: fi.ModTime().UnixNano(),
		IsDir:   fi.IsDir(),
		Mode:    fi.Mode(),
	}
}
