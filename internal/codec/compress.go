package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// compressEncoder adapts zstd's io.Writer-oriented streaming encoder to
// the Feed/Finish shape: every Feed call drains whatever compressed
// bytes the encoder has produced so far into the returned slice, so the
// codec is usable against a buffer as well as a live connection.
type compressEncoder struct {
	buf *bytes.Buffer
	enc *zstd.Encoder
}

// NewCompressEncoder begins a streaming zstd compression. SpeedFastest,
// single-threaded: throughput matters more than ratio here, and the
// copy workers already provide the parallelism.
func NewCompressEncoder() (Encoder, error) {
	buf := &bytes.Buffer{}
	enc, err := zstd.NewWriter(buf,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return &compressEncoder{buf: buf, enc: enc}, nil
}

func (c *compressEncoder) Feed(p []byte) ([]byte, error) {
	if _, err := c.enc.Write(p); err != nil {
		return nil, fmt.Errorf("zstd write: %w", err)
	}
	if err := c.enc.Flush(); err != nil {
		return nil, fmt.Errorf("zstd flush: %w", err)
	}
	return c.drain(), nil
}

func (c *compressEncoder) Finish() ([]byte, error) {
	if err := c.enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd close: %w", err)
	}
	return c.drain(), nil
}

func (c *compressEncoder) drain() []byte {
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	c.buf.Reset()
	return out
}

// compressDecoder is the symmetric decode side. The zstd reader pulls
// from a pipe a background goroutine keeps drained, so an exhausted
// input buffer mid-frame blocks the decoder instead of reading as a
// premature end of stream.
type compressDecoder struct {
	pw   *io.PipeWriter
	mu   sync.Mutex
	out  bytes.Buffer
	done chan error
}

// NewCompressDecoder begins a streaming zstd decompression.
func NewCompressDecoder() (Decoder, error) {
	pr, pw := io.Pipe()
	dec, err := zstd.NewReader(pr, zstd.WithDecoderConcurrency(1))
	if err != nil {
		pw.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	c := &compressDecoder{pw: pw, done: make(chan error, 1)}
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, rerr := dec.Read(buf)
			if n > 0 {
				c.mu.Lock()
				c.out.Write(buf[:n])
				c.mu.Unlock()
			}
			if rerr != nil {
				dec.Close()
				if rerr == io.EOF {
					c.done <- nil
				} else {
					c.done <- rerr
					pr.CloseWithError(rerr)
				}
				return
			}
		}
	}()
	return c, nil
}

func (c *compressDecoder) Feed(p []byte) ([]byte, error) {
	if len(p) > 0 {
		if _, err := c.pw.Write(p); err != nil {
			return c.drain(), fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	return c.drain(), nil
}

func (c *compressDecoder) Finish() ([]byte, error) {
	c.pw.Close()
	err := <-c.done
	out := c.drain()
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}

func (c *compressDecoder) drain() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out.Len() == 0 {
		return nil
	}
	out := make([]byte, c.out.Len())
	copy(out, c.out.Bytes())
	c.out.Reset()
	return out
}
