package codec

import (
	"io"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// DeltaMinSize is the minimum file size for which computing a delta is
// worth the signature overhead; below this a full send is cheaper.
const DeltaMinSize = 64 * 1024

// BlockSig is a single basis-file block's weak+strong hash pair.
type BlockSig struct {
	Index      int
	Offset     int64
	WeakHash   uint64
	StrongHash [32]byte
}

// Signature is the block-level signature of a delta reference (basis)
// file, computed once on the side that already has it.
type Signature struct {
	Blocks    []BlockSig
	BlockSize int
	FileSize  int64
}

// Op is a single reconstruction instruction: either "copy Length bytes
// from the basis starting at Offset" (BlockIdx >= 0) or "write these
// Literal bytes" (BlockIdx == -1).
type Op struct {
	Literal  []byte
	Offset   int64
	BlockIdx int
	Length   int
}

// ChooseBlockSize selects sqrt(fileSize) clamped to [512, 128KiB].
func ChooseBlockSize(fileSize int64) int {
	bs := int(math.Sqrt(float64(fileSize)))
	if bs < 512 {
		bs = 512
	}
	if bs > 131072 {
		bs = 131072
	}
	return bs
}

// ComputeSignature reads the entire basis stream, producing block-level
// weak (xxHash) and strong (BLAKE3) hashes.
func ComputeSignature(r io.Reader, fileSize int64) (Signature, error) {
	return computeSignature(r, fileSize, nil)
}

// computeSignature is ComputeSignature with an optional caller-supplied
// read buffer; one block is allocated when scratch is nil or too small.
func computeSignature(r io.Reader, fileSize int64, scratch []byte) (Signature, error) {
	blockSize := ChooseBlockSize(fileSize)
	sig := Signature{BlockSize: blockSize, FileSize: fileSize}

	buf := scratch
	if len(buf) < blockSize {
		buf = make([]byte, blockSize)
	}
	buf = buf[:blockSize]
	var offset int64
	idx := 0

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			block := buf[:n]
			sig.Blocks = append(sig.Blocks, BlockSig{
				Index:      idx,
				Offset:     offset,
				WeakHash:   xxhash.Sum64(block),
				StrongHash: blake3.Sum256(block),
			})
			offset += int64(n)
			idx++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return Signature{}, err
		}
	}

	return sig, nil
}

type sigCandidate struct {
	index  int
	strong [32]byte
	offset int64
}

// MatchBlocks compares src against sig, producing the Op stream that
// reconstructs src from the basis the signature describes plus a
// minimal set of literal bytes for content not found in the basis.
func MatchBlocks(src io.Reader, sig Signature) ([]Op, error) {
	if len(sig.Blocks) == 0 {
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, nil
		}
		return []Op{{BlockIdx: -1, Length: len(data), Literal: data}}, nil
	}

	weakMap := make(map[uint64][]sigCandidate, len(sig.Blocks))
	for _, b := range sig.Blocks {
		weakMap[b.WeakHash] = append(weakMap[b.WeakHash], sigCandidate{
			index: b.Index, strong: b.StrongHash, offset: b.Offset,
		})
	}

	blockSize := sig.BlockSize
	srcData, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}

	var ops []Op
	var literalBuf []byte

	flushLiteral := func() {
		if len(literalBuf) > 0 {
			ops = append(ops, Op{BlockIdx: -1, Length: len(literalBuf), Literal: literalBuf})
			literalBuf = nil
		}
	}

	i := 0
	for i < len(srcData) {
		end := min(i+blockSize, len(srcData))
		chunk := srcData[i:end]

		matched := false
		if len(chunk) >= blockSize || (len(chunk) > 0 && i+len(chunk) == len(srcData)) {
			weak := xxhash.Sum64(chunk)
			if candidates, ok := weakMap[weak]; ok {
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
		}

		if !matched {
			literalBuf = append(literalBuf, srcData[i])
			i++
		}
	}

	flushLiteral()
	return ops, nil
}

// Apply reconstructs a file by replaying ops against basis, writing the
// result to dst. scratch stages basis block reads; one is allocated
// when nil.
func Apply(basis io.ReadSeeker, ops []Op, dst io.Writer, scratch []byte) error {
	if len(scratch) == 0 {
		scratch = make([]byte, 64*1024)
	}
	for _, op := range ops {
		if op.BlockIdx >= 0 {
			if _, err := basis.Seek(op.Offset, io.SeekStart); err != nil {
				return err
			}
			for remaining := op.Length; remaining > 0; {
				n := min(remaining, len(scratch))
				if _, err := io.ReadFull(basis, scratch[:n]); err != nil {
					return err
				}
				if _, err := dst.Write(scratch[:n]); err != nil {
					return err
				}
				remaining -= n
			}
		} else {
			if _, err := dst.Write(op.Literal); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats summarizes an Op stream: how many bytes were served from the
// basis versus sent as fresh literal data.
func Stats(ops []Op) (matchedBlocks int, literalBytes int64) {
	for _, op := range ops {
		if op.BlockIdx >= 0 {
			matchedBlocks++
		} else {
			literalBytes += int64(op.Length)
		}
	}
	return matchedBlocks, literalBytes
}
