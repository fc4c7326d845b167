// Package wireproto implements the session wire protocol: bit-exact
// frame encoding, the message taxonomy carried inside frames, and the
// per-session state machine that governs which messages are legal when.
//
// The protocol is synchronous per session — one request outstanding at
// a time, no multiplexed streams — so framing carries no stream ID.
package wireproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameHeaderSize is 4 bytes length + 1 byte tag.
	FrameHeaderSize = 5

	// MaxFrameSize bounds a single frame, header included.
	MaxFrameSize = 4 * 1024 * 1024

	// DataChunkSize is the payload size BYTES frames are split into when
	// streaming a file body.
	DataChunkSize = 256 * 1024
)

// ErrFrameTooLarge is returned by WriteFrame/ReadFrame when a frame
// would exceed MaxFrameSize.
var ErrFrameTooLarge = errors.New("wireproto: frame exceeds maximum size")

// WriteFrame writes tag and body to w as a single length-prefixed
// frame: 4-byte big-endian length (of tag+body) + 1-byte tag + body.
// Header and body are combined into one buffer and one Write call to
// avoid a syscall (and a Nagle-induced delay) per frame.
func WriteFrame(w io.Writer, tag byte, body []byte) error {
	totalLen := uint32(1 + len(body))
	if int(totalLen)+4 > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, FrameHeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[0:4], totalLen)
	buf[4] = tag
	copy(buf[FrameHeaderSize:], body)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wireproto: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader) (tag byte, body []byte, err error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	totalLen := binary.BigEndian.Uint32(header[0:4])
	if int(totalLen)+4 > MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}
	if totalLen < 1 {
		return 0, nil, fmt.Errorf("wireproto: frame too small: length %d", totalLen)
	}

	tag = header[4]
	bodyLen := totalLen - 1
	if bodyLen > 0 {
		body = make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("wireproto: read frame body: %w", err)
		}
	}
	return tag, body, nil
}
