//go:build linux

package platform

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Copy moves size bytes from src to dst through the fastest path the
// kernel offers: copy_file_range (in-kernel, reflink-capable), then
// sendfile, then the portable read/write loop with the caller's buffer.
// A strategy that moved nothing and failed with a "not supported here"
// errno falls through to the next; any other failure is returned.
func Copy(src, dst *os.File, size int64, buf []byte) (int64, Method, error) {
	Preallocate(dst, size)

	n, err := copyRange(src, dst, size)
	if err == nil {
		return n, CopyRange, nil
	}
	if n > 0 || !fallbackErrno(err) {
		return n, CopyRange, err
	}

	n, err = sendfile(src, dst, size)
	if err == nil {
		return n, Sendfile, nil
	}
	if n > 0 || !fallbackErrno(err) {
		return n, Sendfile, err
	}

	n, err = readWriteCopy(src, dst, size, buf)
	return n, ReadWrite, err
}

// Preallocate reserves size bytes for dst so the filesystem can lay the
// file out contiguously before the first write lands. Advisory:
// fallocate is not supported everywhere and failure changes nothing.
func Preallocate(dst *os.File, size int64) {
	if size > 0 {
		_ = unix.Fallocate(int(dst.Fd()), 0, 0, size)
	}
}

func copyRange(src, dst *os.File, size int64) (int64, error) {
	var roff, woff int64
	for roff < size {
		n, err := unix.CopyFileRange(int(src.Fd()), &roff, int(dst.Fd()), &woff, int(size-roff), 0)
		if err != nil {
			return roff, err
		}
		if n == 0 {
			break // source shorter than size
		}
	}
	return roff, nil
}

func sendfile(src, dst *os.File, size int64) (int64, error) {
	var off, total int64
	for total < size {
		n, err := unix.Sendfile(int(dst.Fd()), int(src.Fd()), &off, int(size-total))
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += int64(n)
	}
	return total, nil
}

// fallbackErrno reports whether err means "this strategy cannot work
// for these files" as opposed to a real I/O failure.
func fallbackErrno(err error) bool {
	return errors.Is(err, unix.ENOSYS) ||
		errors.Is(err, unix.EXDEV) ||
		errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.ENOTSUP)
}
