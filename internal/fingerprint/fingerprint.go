// Package fingerprint computes the 128-bit content fingerprint used to
// identify file contents throughout the Content Database and wire
// protocol.
package fingerprint

import (
	"encoding/binary"
	"io"

	"github.com/zeebo/blake3"
)

// Fingerprint is the 128-bit content digest. It is derived from the
// first 16 bytes of a BLAKE3 digest, split into two big-endian halves
// so it can be framed on the wire as two fixed 8-byte integers (see
// internal/wireproto) without any further encoding.
type Fingerprint struct {
	Hi uint64
	Lo uint64
}

// Zero reports whether fp is the zero fingerprint (the empty-content
// fingerprint is never zero in practice, so this is a convenient
// "unset" sentinel).
func (fp Fingerprint) Zero() bool {
	return fp.Hi == 0 && fp.Lo == 0
}

func (fp Fingerprint) String() string {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], fp.Hi)
	binary.BigEndian.PutUint64(b[8:16], fp.Lo)
	const hex = "0123456789abcdef"
	out := make([]byte, 32)
	for i, c := range b {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0xf]
	}
	return string(out)
}

// Builder accumulates bytes and produces a Fingerprint, mirroring the
// streaming shape every codec.Transform and I/O primitive in this repo
// uses: Write repeatedly, then Sum once.
type Builder struct {
	h *blake3.Hasher
}

// NewBuilder returns a Builder ready to accept writes.
func NewBuilder() *Builder {
	return &Builder{h: blake3.New()}
}

// Write implements io.Writer.
func (b *Builder) Write(p []byte) (int, error) {
	return b.h.Write(p)
}

// Sum finalizes the digest and returns the Fingerprint. The Builder may
// continue to be written to afterward; Sum does not reset state.
func (b *Builder) Sum() Fingerprint {
	digest := b.h.Sum(nil)
	return Fingerprint{
		Hi: binary.BigEndian.Uint64(digest[0:8]),
		Lo: binary.BigEndian.Uint64(digest[8:16]),
	}
}

// Of computes the Fingerprint of everything read from r.
func Of(r io.Reader) (Fingerprint, error) {
	b := NewBuilder()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(b, r, buf); err != nil {
		return Fingerprint{}, err
	}
	return b.Sum(), nil
}

// OfBytes computes the Fingerprint of a byte slice already in memory.
func OfBytes(data []byte) Fingerprint {
	digest := blake3.Sum256(data)
	return Fingerprint{
		Hi: binary.BigEndian.Uint64(digest[0:8]),
		Lo: binary.BigEndian.Uint64(digest[8:16]),
	}
}
