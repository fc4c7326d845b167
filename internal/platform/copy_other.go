//go:build !linux

package platform

import "os"

// Copy on platforms without a kernel copy fast path is the portable
// positioned read/write loop.
func Copy(src, dst *os.File, size int64, buf []byte) (int64, Method, error) {
	n, err := readWriteCopy(src, dst, size, buf)
	return n, ReadWrite, err
}

// Preallocate is a no-op without fallocate(2).
func Preallocate(_ *os.File, _ int64) {}
