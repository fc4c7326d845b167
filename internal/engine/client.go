package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/eacopy/eacopy/internal/codec"
	"github.com/eacopy/eacopy/internal/fingerprint"
	"github.com/eacopy/eacopy/internal/ioprim"
	"github.com/eacopy/eacopy/internal/obs"
	"github.com/eacopy/eacopy/internal/wireproto"
)

// ServerClient drives one TCP session's wire protocol conversation for a
// worker: handshake once, then one FILE_SEND/FILE_RECV/BYTES.../FILE_ACK
// exchange per file, ending with BYE. The conversation is strictly
// synchronous — no reader/writer goroutine split, since only one
// request is ever outstanding at a time.
type ServerClient struct {
	conn    net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	session *wireproto.Session
	log     *obs.LogContext
}

// DialOptions configures DialServer.
type DialOptions struct {
	Addr     string
	ClientID string
	Secret   fingerprint.Fingerprint
	// Flags is the feature set to request; the server's grant (which
	// may be smaller) governs what decisions it will make.
	Flags wireproto.Flags
	// BWLimit caps this session's outbound bytes per second; 0 means
	// unlimited. The cap is also reported to the server in ENV.
	BWLimit int64
	Log     *obs.LogContext
}

// ServerError is a classified failure the server reported in an ERR
// message; the session is closed once one arrives.
type ServerError struct {
	Kind    wireproto.ErrKind
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("engine: server error %d: %s", e.Kind, e.Message)
}

// DialServer opens a TCP connection and performs the HELLO/HELLO_ACK
// handshake: the secret fingerprint gates admission, and the returned
// client carries whatever feature subset the server granted.
func DialServer(opts DialOptions) (*ServerClient, error) {
	conn, err := net.DialTimeout("tcp", opts.Addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("engine: dial %s: %w", opts.Addr, err)
	}

	var w io.Writer = conn
	if opts.BWLimit > 0 {
		w = wireproto.NewRateLimitedWriter(context.Background(), conn, wireproto.NewBWLimiter(opts.BWLimit))
	}

	c := &ServerClient{
		conn:    conn,
		r:       bufio.NewReaderSize(conn, wireproto.DataChunkSize),
		w:       bufio.NewWriterSize(w, wireproto.DataChunkSize),
		session: wireproto.NewSession(),
		log:     opts.Log,
	}

	if err := c.handshake(opts); err != nil {
		conn.Close()
		return nil, err
	}

	env := wireproto.Env{BWLimitBytesPS: uint64(max(opts.BWLimit, 0))}
	if err := c.send(wireproto.TagEnv, env.Marshal()); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *ServerClient) handshake(opts DialOptions) error {
	hello := wireproto.Hello{
		ProtocolVersion:   wireproto.ProtocolVersion,
		Flags:             opts.Flags,
		ClientID:          opts.ClientID,
		SecretFingerprint: opts.Secret,
	}
	if err := c.send(wireproto.TagHello, hello.Marshal()); err != nil {
		return err
	}

	tag, body, err := c.recv()
	if err != nil {
		return fmt.Errorf("engine: handshake: %w", err)
	}
	if tag != wireproto.TagHelloAck {
		return fmt.Errorf("engine: handshake: unexpected tag %s", wireproto.TagName(tag))
	}
	ack, err := wireproto.UnmarshalHelloAck(body)
	if err != nil {
		return fmt.Errorf("engine: handshake: %w", err)
	}
	if !ack.Accepted {
		_ = c.session.Advance(wireproto.EventHelloRejected)
		return fmt.Errorf("engine: handshake rejected: %s", ack.Reason)
	}
	c.session.SetNegotiated(ack.Granted)
	if c.log != nil {
		c.log.Debug("session negotiated", "session", ack.SessionID, "granted", ack.Granted.String())
	}
	return c.session.Advance(wireproto.EventHelloAccepted)
}

// Negotiated returns the feature set the server granted at handshake.
func (c *ServerClient) Negotiated() wireproto.Flags {
	return c.session.Negotiated()
}

// SendFile negotiates one file's transfer: issues FILE_SEND, reads the
// server's FILE_RECV decision, streams the body the decision calls for
// through copyCtx's buffers, and returns the server's FILE_ACK along
// with the decision that was taken, so the caller can tally the
// transfer class.
func (c *ServerClient) SendFile(req wireproto.FileSend, copyCtx *ioprim.CopyContext, open func() (io.ReadCloser, error), refOpen func(name string) (io.ReadSeekCloser, error)) (wireproto.FileAck, wireproto.Decision, error) {
	if err := c.session.Advance(wireproto.EventFileSendIssued); err != nil {
		return wireproto.FileAck{}, 0, err
	}

	if err := c.send(wireproto.TagFileSend, req.Marshal()); err != nil {
		return wireproto.FileAck{}, 0, err
	}

	tag, body, err := c.recv()
	if err != nil {
		return wireproto.FileAck{}, 0, fmt.Errorf("engine: file_recv: %w", err)
	}
	if tag != wireproto.TagFileRecv {
		return wireproto.FileAck{}, 0, fmt.Errorf("engine: file_recv: unexpected tag %s", wireproto.TagName(tag))
	}
	recv, err := wireproto.UnmarshalFileRecv(body)
	if err != nil {
		return wireproto.FileAck{}, 0, err
	}

	if recv.Decision != wireproto.AlreadyHave {
		if err := c.streamBody(recv, copyCtx, open, refOpen); err != nil {
			return wireproto.FileAck{}, recv.Decision, err
		}
	}

	tag, body, err = c.recv()
	if err != nil {
		return wireproto.FileAck{}, recv.Decision, fmt.Errorf("engine: file_ack: %w", err)
	}
	if tag == wireproto.TagErr {
		e, _ := wireproto.UnmarshalErr(body)
		_ = c.session.Advance(wireproto.EventError)
		return wireproto.FileAck{}, recv.Decision, &ServerError{Kind: e.Kind, Message: e.Message}
	}
	if tag != wireproto.TagFileAck {
		return wireproto.FileAck{}, recv.Decision, fmt.Errorf("engine: file_ack: unexpected tag %s", wireproto.TagName(tag))
	}
	ack, err := wireproto.UnmarshalFileAck(body)
	if err != nil {
		return wireproto.FileAck{}, recv.Decision, err
	}
	if err := c.session.Advance(wireproto.EventFileAckReceived); err != nil {
		return wireproto.FileAck{}, recv.Decision, err
	}
	return ack, recv.Decision, nil
}

// streamBody pushes the file's body in the form the server asked for.
// Compression and delta go through the same Encoder interface; raw is
// the nil encoder. Source reads stage through copyCtx.ReadBuf; the
// delta encoder's signature pass borrows copyCtx.DeltaBuf.
func (c *ServerClient) streamBody(recv wireproto.FileRecv, copyCtx *ioprim.CopyContext, open func() (io.ReadCloser, error), refOpen func(name string) (io.ReadSeekCloser, error)) error {
	src, err := open()
	if err != nil {
		return fmt.Errorf("engine: open source for send: %w", err)
	}
	defer src.Close()

	var enc codec.Encoder
	switch recv.Decision {
	case wireproto.SendCompressed:
		enc, err = codec.NewCompressEncoder()
		if err != nil {
			return err
		}
	case wireproto.SendDelta:
		ref, rerr := refOpen(recv.RefName)
		if rerr != nil {
			return fmt.Errorf("engine: open delta reference %s: %w", recv.RefName, rerr)
		}
		refSize, rerr := seekSize(ref)
		if rerr != nil {
			ref.Close()
			return fmt.Errorf("engine: size delta reference %s: %w", recv.RefName, rerr)
		}
		enc, err = codec.NewDeltaEncoder(ref, refSize, copyCtx.DeltaBuf)
		ref.Close()
		if err != nil {
			return err
		}
	case wireproto.SendRaw:
		// enc stays nil: raw passthrough below.
	}

	buf := copyCtx.ReadBuf[:wireproto.DataChunkSize]
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if enc != nil {
				chunk, err = enc.Feed(chunk)
				if err != nil {
					return err
				}
			}
			if err := c.sendChunked(chunk); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("engine: read source body: %w", rerr)
		}
	}
	if enc != nil {
		tail, err := enc.Finish()
		if err != nil {
			return err
		}
		if err := c.sendChunked(tail); err != nil {
			return err
		}
	}
	return c.send(wireproto.TagEndBytes, nil)
}

// sendChunked splits p into BYTES frames no larger than DataChunkSize;
// an encoder's Finish can hand back more than one chunk's worth.
func (c *ServerClient) sendChunked(p []byte) error {
	for len(p) > 0 {
		n := min(len(p), wireproto.DataChunkSize)
		if err := c.send(wireproto.TagBytes, p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// seekSize reports r's total length by seeking to the end and back to
// the start, leaving r positioned at offset 0 for a subsequent read.
func seekSize(r io.ReadSeeker) (int64, error) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// Bye ends the session cleanly.
func (c *ServerClient) Bye() error {
	if err := c.send(wireproto.TagBye, nil); err != nil {
		return err
	}
	return c.session.Advance(wireproto.EventBye)
}

// Close releases the underlying connection.
func (c *ServerClient) Close() error {
	return c.conn.Close()
}

func (c *ServerClient) send(tag byte, body []byte) error {
	if err := wireproto.WriteFrame(c.w, tag, body); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *ServerClient) recv() (byte, []byte, error) {
	return wireproto.ReadFrame(c.r)
}