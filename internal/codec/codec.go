// Package codec implements the streaming compression and delta
// transforms used to shrink what the wire protocol sends. Both codecs
// conform to the same {begin, feed, finish} capability shape so the
// wire layer and the copy engine can treat them polymorphically by
// codec family rather than by concrete type.
package codec

import "errors"

// ErrCorrupt wraps a decode-side failure: a compressed or delta stream
// that could not be reconstructed. A session that hits it is torn down
// and the file retried on a fallback path.
var ErrCorrupt = errors.New("codec: corrupt stream")

// Encoder is the encode-direction half of a Transform: call Feed as
// bytes become available, then Finish once, exactly once, when the
// source is exhausted.
type Encoder interface {
	Feed(p []byte) ([]byte, error)
	Finish() ([]byte, error)
}

// Decoder is the decode-direction half: call Feed as encoded bytes
// arrive, then Finish to flush anything buffered internally.
type Decoder interface {
	Feed(p []byte) ([]byte, error)
	Finish() ([]byte, error)
}
