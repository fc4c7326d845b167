package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// maxLiteralRun caps how much unmatched data the encoder buffers before
// emitting it as a literal op, so a file with no basis overlap streams
// in bounded memory instead of accumulating until Finish.
const maxLiteralRun = 1 << 20

// deltaEncoder implements Encoder over the block-matching delta: Feed
// consumes target bytes and emits serialized ops for every position it
// can already decide; a tail shorter than one block stays pending until
// more bytes arrive or Finish declares end of input.
type deltaEncoder struct {
	weak      map[uint64][]sigCandidate
	blockSize int
	pending   []byte
	literal   []byte
}

// NewDeltaEncoder reads the whole basis from ref, building its block
// signature, and returns an Encoder producing the serialized op stream
// that reconstructs the fed bytes from that basis. scratch, if large
// enough for one block, is used for the signature read; pass a worker's
// delta buffer to avoid the allocation.
func NewDeltaEncoder(ref io.Reader, refSize int64, scratch []byte) (Encoder, error) {
	sig, err := computeSignature(ref, refSize, scratch)
	if err != nil {
		return nil, fmt.Errorf("codec: delta signature: %w", err)
	}

	weak := make(map[uint64][]sigCandidate, len(sig.Blocks))
	for _, b := range sig.Blocks {
		weak[b.WeakHash] = append(weak[b.WeakHash], sigCandidate{
			index: b.Index, strong: b.StrongHash, offset: b.Offset,
		})
	}
	return &deltaEncoder{weak: weak, blockSize: sig.BlockSize}, nil
}

func (e *deltaEncoder) Feed(p []byte) ([]byte, error) {
	e.pending = append(e.pending, p...)
	return EncodeOps(e.match(false)), nil
}

func (e *deltaEncoder) Finish() ([]byte, error) {
	ops := e.match(true)
	if len(e.literal) > 0 {
		ops = append(ops, Op{BlockIdx: -1, Length: len(e.literal), Literal: e.literal})
		e.literal = nil
	}
	return EncodeOps(ops), nil
}

// match resolves as much of the pending input as can be decided now: a
// position is decidable once a full block is visible past it, or once
// final marks the input complete. Undecided bytes stay pending.
func (e *deltaEncoder) match(final bool) []Op {
	var ops []Op
	flushLiteral := func() {
		if len(e.literal) > 0 {
			ops = append(ops, Op{BlockIdx: -1, Length: len(e.literal), Literal: e.literal})
			e.literal = nil
		}
	}

	i := 0
	for i < len(e.pending) {
		if len(e.pending)-i < e.blockSize && !final {
			break
		}
		end := min(i+e.blockSize, len(e.pending))
		chunk := e.pending[i:end]

		matched := false
		weak := xxhash.Sum64(chunk)
		if candidates, ok := e.weak[weak]; ok {
			strong := blake3.Sum256(chunk)
			for _, c := range candidates {
				if c.strong == strong {
					flushLiteral()
					ops = append(ops, Op{BlockIdx: c.index, Offset: c.offset, Length: len(chunk)})
					i += len(chunk)
					matched = true
					break
				}
			}
		}
		if !matched {
			e.literal = append(e.literal, e.pending[i])
			i++
			if len(e.literal) >= maxLiteralRun {
				flushLiteral()
			}
		}
	}

	e.pending = e.pending[i:]
	return ops
}

// deltaDecoder implements Decoder: Feed consumes serialized ops and
// returns reconstructed target bytes, replaying block ops against the
// basis through the caller's scratch buffer.
type deltaDecoder struct {
	basis   io.ReadSeeker
	scratch []byte
	pending []byte
}

// NewDeltaDecoder returns a Decoder reconstructing a target against
// basis. scratch stages basis block reads; pass a worker's delta buffer
// (one is allocated if nil).
func NewDeltaDecoder(basis io.ReadSeeker, scratch []byte) Decoder {
	if len(scratch) == 0 {
		scratch = make([]byte, 64*1024)
	}
	return &deltaDecoder{basis: basis, scratch: scratch}
}

func (d *deltaDecoder) Feed(p []byte) ([]byte, error) {
	d.pending = append(d.pending, p...)

	var out []byte
	for len(d.pending) >= 17 {
		blockIdx := int32(binary.BigEndian.Uint32(d.pending[0:4]))
		offset := int64(binary.BigEndian.Uint64(d.pending[4:12]))
		length := int(binary.BigEndian.Uint32(d.pending[12:16]))
		hasLiteral := d.pending[16] == 1

		if hasLiteral != (blockIdx < 0) {
			return out, fmt.Errorf("%w: inconsistent op header", ErrCorrupt)
		}

		if hasLiteral {
			if len(d.pending) < 17+length {
				break // literal body still in flight
			}
			out = append(out, d.pending[17:17+length]...)
			d.pending = d.pending[17+length:]
			continue
		}

		if _, err := d.basis.Seek(offset, io.SeekStart); err != nil {
			return out, fmt.Errorf("%w: seek basis: %v", ErrCorrupt, err)
		}
		for remaining := length; remaining > 0; {
			n := min(remaining, len(d.scratch))
			if _, err := io.ReadFull(d.basis, d.scratch[:n]); err != nil {
				return out, fmt.Errorf("%w: read basis block: %v", ErrCorrupt, err)
			}
			out = append(out, d.scratch[:n]...)
			remaining -= n
		}
		d.pending = d.pending[17:]
	}
	return out, nil
}

func (d *deltaDecoder) Finish() ([]byte, error) {
	if len(d.pending) != 0 {
		return nil, fmt.Errorf("%w: truncated op stream", ErrCorrupt)
	}
	return nil, nil
}
