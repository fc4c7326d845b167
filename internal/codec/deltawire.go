package codec

import (
	"encoding/binary"
	"fmt"
)

// EncodeOps serializes a delta Op stream for wire transport: one
// variable-length record per Op (BlockIdx int32, Offset int64, Length
// uint32, then Literal bytes when BlockIdx < 0), in the same
// combined-buffer style wireproto's frame encoder uses.
func EncodeOps(ops []Op) []byte {
	buf := make([]byte, 0, len(ops)*17)
	var hdr [17]byte
	for _, op := range ops {
		binary.BigEndian.PutUint32(hdr[0:4], uint32(int32(op.BlockIdx)))
		binary.BigEndian.PutUint64(hdr[4:12], uint64(op.Offset))
		binary.BigEndian.PutUint32(hdr[12:16], uint32(op.Length))
		if op.BlockIdx < 0 {
			hdr[16] = 1
		} else {
			hdr[16] = 0
		}
		buf = append(buf, hdr[:]...)
		if op.BlockIdx < 0 {
			buf = append(buf, op.Literal...)
		}
	}
	return buf
}

// DecodeOps reverses EncodeOps.
func DecodeOps(data []byte) ([]Op, error) {
	var ops []Op
	for len(data) > 0 {
		if len(data) < 17 {
			return nil, fmt.Errorf("codec: truncated op record")
		}
		blockIdx := int32(binary.BigEndian.Uint32(data[0:4]))
		offset := int64(binary.BigEndian.Uint64(data[4:12]))
		length := binary.BigEndian.Uint32(data[12:16])
		hasLiteral := data[16] == 1
		data = data[17:]

		op := Op{BlockIdx: int(blockIdx), Offset: offset, Length: int(length)}
		if hasLiteral {
			if uint32(len(data)) < length {
				return nil, fmt.Errorf("codec: truncated literal")
			}
			op.Literal = append([]byte(nil), data[:length]...)
			data = data[length:]
		}
		ops = append(ops, op)
	}
	return ops, nil
}
