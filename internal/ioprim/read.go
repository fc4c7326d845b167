package ioprim

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/eacopy/eacopy/internal/obs"
)

// ReadHandle is an open-for-read file, opaque to callers beyond
// Read/Close.
type ReadHandle struct {
	f      *os.File
	r      io.Reader
	buf    *bufio.Reader
	stats  *obs.Aggregate
	closed bool
}

// OpenRead opens path for reading. buffered=Auto resolves against
// BufferThreshold using the file's size, taken from a stat of path.
// sequential hints the OS to prefetch; shared allows other processes to
// hold the file open concurrently (always true on POSIX, kept as a
// parameter for call-site symmetry with OpenWrite and to document
// intent).
func OpenRead(path string, buffered Buffering, sequential, shared bool, stats *obs.Aggregate) (*ReadHandle, error) {
	_ = sequential // no POSIX equivalent to FILE_FLAG_SEQUENTIAL_SCAN; documented hint only
	_ = shared

	defer stats.Timer(obs.OpenRead)()

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ioprim: stat %s: %w", path, classify(err))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ioprim: open %s: %w", path, classify(err))
	}

	h := &ReadHandle{f: f, stats: stats}
	if resolve(buffered, info.Size()) == Buffered {
		h.buf = bufio.NewReaderSize(f, CopyBufferSize)
		h.r = h.buf
	} else {
		h.r = f
	}
	return h, nil
}

// Read fills buf and records the call's duration.
func (h *ReadHandle) Read(buf []byte) (int, error) {
	defer h.stats.Timer(obs.Read)()
	n, err := h.r.Read(buf)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("ioprim: read: %w", classify(err))
	}
	return n, err
}

// Close closes the underlying file.
func (h *ReadHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	defer h.stats.Timer(obs.CloseRead)()
	if err := h.f.Close(); err != nil {
		return fmt.Errorf("ioprim: close read %s: %w", h.f.Name(), err)
	}
	return nil
}

// FileInfoOf stats path and records the call under the FileInfo class.
func FileInfoOf(path string, stats *obs.Aggregate) (FileInfo, error) {
	defer stats.Timer(obs.FileInfo)()
	fi, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("ioprim: stat %s: %w", path, classify(err))
	}
	return toFileInfo(path, fi), nil
}
