// Package platform holds the kernel copy fast paths ioprim's portable
// surface layers over. Copy works on a pair of already-open files: the
// caller owns both handles and the staging buffer, so this package
// opens nothing and allocates nothing on the happy path.
// copy_file_range and the read/write loop use explicit offsets and leave
// both handles' seek offsets alone; the sendfile path writes at dst's
// current offset and advances it.
package platform

import (
	"io"
	"os"
)

// Method identifies which syscall path moved the bytes.
type Method int

const (
	ReadWrite Method = iota
	CopyRange        // Linux copy_file_range(2)
	Sendfile         // Linux sendfile(2)
)

func (m Method) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	default:
		return "unknown"
	}
}

// readWriteCopy is the portable floor under every platform's Copy: a
// positioned read/write loop through buf. ReadAt/WriteAt keep the loop
// independent of the handles' seek offsets, so it composes with callers
// that have already positioned them. A short file (size overstates what
// is actually there) ends the copy at EOF rather than erroring.
func readWriteCopy(src, dst *os.File, size int64, buf []byte) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, 1<<20)
	}

	var off int64
	for off < size {
		want := size - off
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		n, rerr := src.ReadAt(buf[:want], off)
		if n > 0 {
			if _, werr := dst.WriteAt(buf[:n], off); werr != nil {
				return off, werr
			}
			off += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return off, rerr
		}
	}
	return off, nil
}
