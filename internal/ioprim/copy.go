package ioprim

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/eacopy/eacopy/internal/obs"
	"github.com/eacopy/eacopy/internal/platform"
)

// CopyContext is a worker's exclusive staging buffer set: three
// CopyBufferSize buffers used for read-hash-write pipelining and delta
// reconstruction scratch. Allocated once at worker start, owned for the
// job's lifetime, and never shared — no sync.Pool, so exclusive
// ownership holds by construction rather than by borrow discipline.
type CopyContext struct {
	ReadBuf  []byte
	WriteBuf []byte
	DeltaBuf []byte
}

// NewCopyContext allocates a CopyContext for one worker.
func NewCopyContext() *CopyContext {
	return &CopyContext{
		ReadBuf:  make([]byte, CopyBufferSize),
		WriteBuf: make([]byte, CopyBufferSize),
		DeltaBuf: make([]byte, CopyBufferSize),
	}
}

// CreateFile writes data to path as a new file with info's mode,
// failing if the destination already exists.
func CreateFile(path string, info FileInfo, data []byte, stats *obs.Aggregate) error {
	mode := info.Mode
	if mode == 0 {
		mode = 0o644
	}
	w, err := OpenWrite(path, Unbuffered, false, false, false, false, stats)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}

// CopyFile copies src to dst, truncating dst if present unless
// failIfExists is set. When useSystemCopy is true it delegates to
// internal/platform's fast-path copy (copy_file_range/sendfile,
// falling through to read/write); otherwise it stages the copy through
// ctx's read buffer in a plain read/write loop, recording each read and
// write under its own timing class. Always returns bytes copied.
func CopyFile(src, dst string, useSystemCopy, failIfExists bool, ctx *CopyContext, stats *obs.Aggregate) (int64, error) {
	defer stats.Timer(obs.FullCopy)()

	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("ioprim: stat %s: %w", src, classify(err))
	}

	dstMode := srcInfo.Mode().Perm()
	flags := os.O_WRONLY | os.O_CREATE
	if failIfExists {
		flags |= os.O_EXCL
	} else {
		flags |= os.O_TRUNC
	}
	dstFd, err := os.OpenFile(dst, flags, dstMode)
	if err != nil {
		if os.IsExist(err) {
			return 0, fmt.Errorf("ioprim: copy %s -> %s: %w", src, dst, ErrAlreadyExists)
		}
		return 0, fmt.Errorf("ioprim: open dst %s: %w", dst, classify(err))
	}
	defer dstFd.Close()

	if useSystemCopy {
		srcFd, err := os.Open(src)
		if err != nil {
			return 0, fmt.Errorf("ioprim: open src %s: %w", src, classify(err))
		}
		defer srcFd.Close()

		var buf []byte
		if ctx != nil {
			buf = ctx.ReadBuf
		}
		n, _, err := platform.Copy(srcFd, dstFd, srcInfo.Size(), buf)
		if err != nil {
			return n, fmt.Errorf("ioprim: system copy %s -> %s: %w", src, dst, classify(err))
		}
		return n, nil
	}

	return copyStaged(src, dstFd, ctx, stats)
}

func copyStaged(src string, dstFd *os.File, ctx *CopyContext, stats *obs.Aggregate) (int64, error) {
	srcFd, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("ioprim: open src %s: %w", src, classify(err))
	}
	defer srcFd.Close()

	buf := ctx.ReadBuf
	if buf == nil {
		buf = make([]byte, CopyBufferSize)
	}

	var total int64
	for {
		start := time.Now()
		n, rerr := srcFd.Read(buf)
		stats.Record(obs.Read, time.Since(start))
		if n > 0 {
			wstart := time.Now()
			if _, werr := dstFd.Write(buf[:n]); werr != nil {
				stats.Record(obs.Write, time.Since(wstart))
				return total, fmt.Errorf("ioprim: write %s: %w", dstFd.Name(), classify(werr))
			}
			stats.Record(obs.Write, time.Since(wstart))
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return total, fmt.Errorf("ioprim: read %s: %w", src, classify(rerr))
		}
	}
	return total, nil
}

// DeleteFile removes path.
func DeleteFile(path string, stats *obs.Aggregate) error {
	defer stats.Timer(obs.DeleteFile)()
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("ioprim: delete %s: %w", path, classify(err))
	}
	return nil
}

// MoveFile renames src to dst, the atomic-rename-on-complete primitive
// the server and engine use to publish a .tmp upload.
func MoveFile(src, dst string, stats *obs.Aggregate) error {
	defer stats.Timer(obs.MoveFile)()
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("ioprim: move %s -> %s: %w", src, dst, classify(err))
	}
	return nil
}
