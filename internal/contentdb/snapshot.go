package contentdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/eacopy/eacopy/internal/fingerprint"
)

// snapshotMagic identifies the file format; snapshotVersion allows the
// layout to change without silently misreading an older file.
var snapshotMagic = [16]byte{'E', 'A', 'C', 'O', 'P', 'Y', ' ', 'C', 'O', 'N', 'T', 'E', 'N', 'T', 'D', 'B'}

const snapshotVersion uint32 = 1

// WriteFile serializes every live record to path in the bit-exact
// binary layout: 16-byte magic, 4-byte version, 8-byte record count,
// then each record as
//
//	2-byte name length, name bytes, 8-byte ModTime, 8-byte Size,
//	8-byte fingerprint Hi, 8-byte fingerprint Lo
//
// Header and every record are written as single buffered Write calls,
// the same combined-write discipline wireproto's framing uses, to
// avoid a syscall per field.
func (db *DB) WriteFile(path string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	var header [16 + 4 + 8]byte
	copy(header[0:16], snapshotMagic[:])
	binary.BigEndian.PutUint32(header[16:20], snapshotVersion)

	live := make([]*Record, 0, len(db.byKey))
	for _, r := range db.history {
		// Skip tombstones and records superseded by a later Insert of
		// the same key: only the record byKey points at is live.
		if r.Key != (Key{}) && db.byKey[r.Key] == r {
			live = append(live, r)
		}
	}
	binary.BigEndian.PutUint64(header[20:28], uint64(len(live)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}

	for _, r := range live {
		if err := writeRecord(w, r); err != nil {
			return fmt.Errorf("write record %q: %w", r.Key.Name, err)
		}
	}

	return w.Flush()
}

func writeRecord(w *bufio.Writer, r *Record) error {
	name := []byte(r.Key.Name)
	buf := make([]byte, 2+len(name)+8+8+8+8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(name)))
	copy(buf[2:2+len(name)], name)
	off := 2 + len(name)
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(r.Key.ModTime))
	binary.BigEndian.PutUint64(buf[off+8:off+16], uint64(r.Key.Size))
	binary.BigEndian.PutUint64(buf[off+16:off+24], r.FP.Hi)
	binary.BigEndian.PutUint64(buf[off+24:off+32], r.FP.Lo)
	_, err := w.Write(buf)
	return err
}

// ReadFile replaces db's contents with the records stored at path.
func (db *DB) ReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header [16 + 4 + 8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	if string(header[0:16]) != string(snapshotMagic[:]) {
		return fmt.Errorf("bad snapshot magic")
	}
	version := binary.BigEndian.Uint32(header[16:20])
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", version)
	}
	count := binary.BigEndian.Uint64(header[20:28])

	db.mu.Lock()
	defer db.mu.Unlock()

	db.byKey = make(map[Key]*Record)
	db.byFingerprint = make(map[fingerprint.Fingerprint][]*Record)
	db.history = nil

	for i := uint64(0); i < count; i++ {
		rec, err := readRecord(r)
		if err != nil {
			return fmt.Errorf("read record %d: %w", i, err)
		}
		rec.HistPos = len(db.history)
		db.byKey[rec.Key] = rec
		db.byFingerprint[rec.FP] = append(db.byFingerprint[rec.FP], rec)
		db.history = append(db.history, rec)
	}

	return nil
}

func readRecord(r *bufio.Reader) (*Record, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	nameLen := binary.BigEndian.Uint16(lenBuf[:])

	rest := make([]byte, int(nameLen)+8+8+8+8)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}

	name := string(rest[:nameLen])
	off := int(nameLen)
	modTime := int64(binary.BigEndian.Uint64(rest[off : off+8]))
	size := int64(binary.BigEndian.Uint64(rest[off+8 : off+16]))
	hi := binary.BigEndian.Uint64(rest[off+16 : off+24])
	lo := binary.BigEndian.Uint64(rest[off+24 : off+32])

	return &Record{
		Key: Key{Name: name, ModTime: modTime, Size: size},
		FP:  fingerprint.Fingerprint{Hi: hi, Lo: lo},
	}, nil
}
