package ioprim

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/eacopy/eacopy/internal/obs"
)

// WriteHandle is an open-for-write file.
type WriteHandle struct {
	f          *os.File
	w          io.Writer
	buf        *bufio.Writer
	stats      *obs.Aggregate
	overlapped bool
	closed     bool
}

// OpenWrite opens path for writing. createAlways=true truncates an
// existing file; otherwise the call fails with ErrAlreadyExists if the
// file is present. overlapped marks the handle as eligible
// for Submit/Wait (see overlapped.go); hidden calls SetHidden once the
// file is created. POSIX has no hidden attribute ("hidden" is a dotfile
// naming convention the caller controls), so on POSIX this only checks
// that path's name starts with a dot and fails the open otherwise.
func OpenWrite(
	path string,
	buffered Buffering,
	overlapped, hidden, createAlways, sharedRead bool,
	stats *obs.Aggregate,
) (*WriteHandle, error) {
	_ = sharedRead // POSIX has no exclusive-write lock by default; documented for symmetry

	defer stats.Timer(obs.OpenWrite)()

	flags := os.O_WRONLY | os.O_CREATE
	if createAlways {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("ioprim: open write %s: %w", path, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("ioprim: open write %s: %w", path, classify(err))
	}

	if hidden {
		if err := SetHidden(path, true); err != nil {
			f.Close()
			return nil, err
		}
	}

	h := &WriteHandle{f: f, stats: stats, overlapped: overlapped}
	if resolve(buffered, -1) == Buffered {
		h.buf = bufio.NewWriterSize(f, CopyBufferSize)
		h.w = h.buf
	} else {
		h.w = f
	}
	return h, nil
}

// Write writes buf and records the call's duration.
func (h *WriteHandle) Write(buf []byte) (int, error) {
	defer h.stats.Timer(obs.Write)()
	n, err := h.w.Write(buf)
	if err != nil {
		err = fmt.Errorf("ioprim: write: %w", classify(err))
	}
	return n, err
}

// Close flushes any buffered data and closes the underlying file.
func (h *WriteHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	defer h.stats.Timer(obs.CloseWrite)()

	if h.buf != nil {
		if err := h.buf.Flush(); err != nil {
			h.f.Close()
			return fmt.Errorf("ioprim: flush %s: %w", h.f.Name(), err)
		}
	}
	if err := h.f.Close(); err != nil {
		return fmt.Errorf("ioprim: close write %s: %w", h.f.Name(), err)
	}
	return nil
}

// Fd exposes the underlying *os.File for platform-specific fast paths
// (internal/platform.Copy writes directly into the destination fd).
func (h *WriteHandle) Fd() *os.File {
	return h.f
}

// SetMtime sets h's last-write-time, preserving the source's
// modification time on the destination.
func SetMtime(h *WriteHandle, t time.Time, stats *obs.Aggregate) error {
	defer stats.Timer(obs.SetMtime)()
	if err := os.Chtimes(h.f.Name(), time.Time{}, t); err != nil {
		return fmt.Errorf("ioprim: set mtime %s: %w", h.f.Name(), classify(err))
	}
	return nil
}

// SetWritable toggles the owner-write permission bit.
func SetWritable(path string, writable bool, stats *obs.Aggregate) error {
	defer stats.Timer(obs.FileInfo)()
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("ioprim: stat %s: %w", path, classify(err))
	}
	mode := fi.Mode()
	if writable {
		mode |= 0o200
	} else {
		mode &^= 0o200
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("ioprim: chmod %s: %w", path, classify(err))
	}
	return nil
}

// SetHidden sets (or clears) the platform hidden attribute. On POSIX
// there is no filesystem hidden bit; "hidden" is the dotfile naming
// convention, so this only validates the name already follows it rather
// than renaming the caller's file out from under them.
func SetHidden(path string, hidden bool) error {
	base := filepathBase(path)
	if hidden && (base == "" || base[0] != '.') {
		return fmt.Errorf("ioprim: %s: hidden attribute requires a dotfile name on this platform", path)
	}
	return nil
}

func filepathBase(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
