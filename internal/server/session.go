package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/eacopy/eacopy/internal/codec"
	"github.com/eacopy/eacopy/internal/contentdb"
	"github.com/eacopy/eacopy/internal/fingerprint"
	"github.com/eacopy/eacopy/internal/ioprim"
	"github.com/eacopy/eacopy/internal/obs"
	"github.com/eacopy/eacopy/internal/wireproto"
)

// supportedFlags is what this server is willing to grant; the grant is
// the intersection with what the client's HELLO asked for.
const supportedFlags = wireproto.FlagCompression | wireproto.FlagDelta | wireproto.FlagSecureCopy

func (s *Server) handleSession(ctx context.Context, conn net.Conn) {
	log := s.log.Push("remote", conn.RemoteAddr().String())
	defer conn.Close()

	r := bufio.NewReaderSize(conn, wireproto.DataChunkSize)
	w := bufio.NewWriterSize(conn, wireproto.DataChunkSize)
	sess := wireproto.NewSession()
	stats := &obs.Aggregate{}
	copyCtx := ioprim.NewCopyContext()

	if err := s.handshake(r, w, sess, log); err != nil {
		log.Warn("handshake failed", "error", err)
		return
	}

	for {
		tag, body, err := wireproto.ReadFrame(r)
		if err != nil {
			log.Debug("session ended", "error", err)
			return
		}

		switch tag {
		case wireproto.TagEnv:
			env, err := wireproto.UnmarshalEnv(body)
			if err != nil {
				s.sendErr(w, wireproto.ErrKindProtocolViolation, err.Error())
				return
			}
			log.Debug("session env", "files", env.FileCount, "bwlimit", env.BWLimitBytesPS)

		case wireproto.TagFileSend:
			req, err := wireproto.UnmarshalFileSend(body)
			if err != nil {
				s.sendErr(w, wireproto.ErrKindProtocolViolation, err.Error())
				return
			}
			if err := sess.Advance(wireproto.EventFileSendIssued); err != nil {
				s.sendErr(w, wireproto.ErrKindProtocolViolation, err.Error())
				return
			}
			if err := s.handleFileSend(r, w, req, sess.Negotiated(), copyCtx, stats, log); err != nil {
				log.Warn("file transfer failed", "file", req.Name, "error", err)
				kind := wireproto.ErrKindDatabaseConsistency
				if errors.Is(err, codec.ErrCorrupt) {
					kind = wireproto.ErrKindCodecCorrupt
				}
				s.sendErr(w, kind, err.Error())
				return
			}
			_ = sess.Advance(wireproto.EventFileAckReceived)

		case wireproto.TagPrime:
			prime, _ := wireproto.UnmarshalPrime(body)
			s.db.Prime(prime.Dir)
			s.db.RunPriming(ctx)

		case wireproto.TagBye:
			_ = sess.Advance(wireproto.EventBye)
			statsMsg := wireproto.Stats{
				FilesSent: uint64(stats.FilesCopied),
			}
			_ = writeFrame(w, wireproto.TagStats, statsMsg.Marshal())
			_ = sess.Advance(wireproto.EventClosed)
			return

		default:
			s.sendErr(w, wireproto.ErrKindProtocolViolation, fmt.Sprintf("unexpected tag %s in state %s", wireproto.TagName(tag), sess.State()))
			return
		}
	}
}

func (s *Server) handshake(r *bufio.Reader, w *bufio.Writer, sess *wireproto.Session, log *obs.LogContext) error {
	tag, body, err := wireproto.ReadFrame(r)
	if err != nil {
		return err
	}
	if tag != wireproto.TagHello {
		return fmt.Errorf("server: expected HELLO, got %s", wireproto.TagName(tag))
	}
	hello, err := wireproto.UnmarshalHello(body)
	if err != nil {
		return err
	}

	accepted := hello.ProtocolVersion == wireproto.ProtocolVersion && hello.SecretFingerprint == s.cfg.SecretFingerprint
	reason := ""
	if !accepted {
		reason = "protocol version or secret mismatch"
	}

	granted := hello.Flags & supportedFlags
	sessionID := uuid.NewString()
	ack := wireproto.HelloAck{
		ProtocolVersion: wireproto.ProtocolVersion,
		Accepted:        accepted,
		Granted:         granted,
		SessionID:       sessionID,
		Reason:          reason,
	}
	if err := writeFrame(w, wireproto.TagHelloAck, ack.Marshal()); err != nil {
		return err
	}
	if !accepted {
		_ = sess.Advance(wireproto.EventHelloRejected)
		return fmt.Errorf("server: rejected client %s: %s", hello.ClientID, reason)
	}
	sess.SetNegotiated(granted)
	log.Info("session accepted", "client", hello.ClientID, "session", sessionID, "granted", granted.String())
	return sess.Advance(wireproto.EventHelloAccepted)
}

// handleFileSend resolves one FILE_SEND: dedup hardlink if the content
// is already present, delta against a previous generation when delta is
// negotiated and a reference exists, compressed when negotiated and
// worthwhile, raw otherwise; then verify, publish, and index what
// arrived.
func (s *Server) handleFileSend(r *bufio.Reader, w *bufio.Writer, req wireproto.FileSend, flags wireproto.Flags, copyCtx *ioprim.CopyContext, stats *obs.Aggregate, log *obs.LogContext) error {
	key := contentdb.Key{Name: req.Name, ModTime: beToNanos(req.ModTime), Size: int64(req.Size)}

	if rec, ok := s.db.GetByFingerprint(req.FP); ok {
		if existingPath := s.pathFor(rec.Key); fileReadable(existingPath) {
			dst := s.destPath(req.Name)
			if err := publishHardlink(existingPath, dst, stats); err == nil {
				if err := writeFrame(w, wireproto.TagFileRecv, wireproto.FileRecv{Decision: wireproto.AlreadyHave}.Marshal()); err != nil {
					return err
				}
				s.db.Insert(key, req.FP)
				return writeFrame(w, wireproto.TagFileAck, wireproto.FileAck{FP: req.FP, Verified: true}.Marshal())
			}
			log.Debug("already-have hardlink fallback", "error", "cross-volume or link-limit, falling through")
		}
	}

	decision := wireproto.SendRaw
	var refName string
	var refFP fingerprint.Fingerprint
	if flags.Has(wireproto.FlagDelta) {
		if refRec, ok := s.db.FindDeltaReference(key, req.FP); ok {
			decision = wireproto.SendDelta
			refName = refRec.Key.Name
			refFP = refRec.FP
		}
	}
	if decision == wireproto.SendRaw && flags.Has(wireproto.FlagCompression) && req.Size >= uint64(codec.DeltaMinSize) {
		decision = wireproto.SendCompressed
	}

	recv := wireproto.FileRecv{Decision: decision, RefName: refName, RefFP: refFP}
	if err := writeFrame(w, wireproto.TagFileRecv, recv.Marshal()); err != nil {
		return err
	}

	dst := s.destPath(req.Name)
	tmpPath := dst + ".tmp-upload"
	if err := ensureParent(dst, stats); err != nil {
		return err
	}

	var assembleErr error
	switch decision {
	case wireproto.SendDelta:
		assembleErr = s.assembleDelta(r, refName, tmpPath, copyCtx, stats)
	case wireproto.SendCompressed:
		dec, err := codec.NewCompressDecoder()
		if err != nil {
			assembleErr = err
		} else {
			assembleErr = s.assembleBody(r, tmpPath, dec, stats)
		}
	default:
		assembleErr = s.assembleBody(r, tmpPath, nil, stats)
	}
	if assembleErr != nil {
		_ = ioprim.DeleteFile(tmpPath, stats)
		return assembleErr
	}

	gotFP, err := fingerprintFile(tmpPath)
	if err != nil {
		_ = ioprim.DeleteFile(tmpPath, stats)
		return err
	}

	if gotFP != req.FP {
		corruptPath := dst + ".corrupt"
		_ = ioprim.MoveFile(tmpPath, corruptPath, stats)
		return writeFrame(w, wireproto.TagFileAck, wireproto.FileAck{FP: gotFP, Verified: false}.Marshal())
	}

	if err := ioprim.MoveFile(tmpPath, dst, stats); err != nil {
		return err
	}
	if err := os.Chtimes(dst, time.Time{}, time.Unix(0, beToNanos(req.ModTime))); err != nil {
		log.Warn("set mtime after assembly failed", "file", req.Name, "error", err)
	}
	s.db.Insert(key, gotFP)
	stats.FilesCopied++
	return writeFrame(w, wireproto.TagFileAck, wireproto.FileAck{FP: gotFP, Verified: true}.Marshal())
}

// assembleBody drains BYTES frames into tmpPath until END_BYTES,
// pushing each frame through dec when one is given; a nil dec means the
// body is raw.
func (s *Server) assembleBody(r *bufio.Reader, tmpPath string, dec codec.Decoder, stats *obs.Aggregate) error {
	wh, err := ioprim.OpenWrite(tmpPath, ioprim.Unbuffered, false, false, true, false, stats)
	if err != nil {
		return err
	}
	defer wh.Close()

	for {
		tag, body, err := wireproto.ReadFrame(r)
		if err != nil {
			return err
		}
		if tag == wireproto.TagEndBytes {
			if dec != nil {
				tail, err := dec.Finish()
				if err != nil {
					return fmt.Errorf("server: decode %s: %w", tmpPath, err)
				}
				if len(tail) > 0 {
					if _, err := wh.Write(tail); err != nil {
						return err
					}
				}
			}
			return wh.Close()
		}
		if tag != wireproto.TagBytes {
			return fmt.Errorf("server: expected BYTES, got %s", wireproto.TagName(tag))
		}
		out := body
		if dec != nil {
			out, err = dec.Feed(body)
			if err != nil {
				return err
			}
		}
		if len(out) > 0 {
			if _, err := wh.Write(out); err != nil {
				return err
			}
		}
	}
}

// assembleDelta reconstructs an upload against its reference file using
// the delta decoder, staging basis reads through the session's delta
// scratch buffer.
func (s *Server) assembleDelta(r *bufio.Reader, refName, tmpPath string, copyCtx *ioprim.CopyContext, stats *obs.Aggregate) error {
	refPath := s.pathFor(contentdb.Key{Name: refName})
	refFile, err := os.Open(refPath)
	if err != nil {
		return fmt.Errorf("server: open delta reference %s: %w", refPath, err)
	}
	defer refFile.Close()

	return s.assembleBody(r, tmpPath, codec.NewDeltaDecoder(refFile, copyCtx.DeltaBuf), stats)
}

func (s *Server) destPath(name string) string {
	return filepath.Join(s.cfg.RootDir, filepath.FromSlash(name))
}

func (s *Server) pathFor(key contentdb.Key) string {
	return s.destPath(key.Name)
}

func ensureParent(dst string, stats *obs.Aggregate) error {
	_, err := ioprim.EnsureDirectory(filepath.Dir(dst), true, true, stats)
	return err
}

func publishHardlink(existingPath, dst string, stats *obs.Aggregate) error {
	if err := ensureParent(dst, stats); err != nil {
		return err
	}
	_ = ioprim.DeleteFile(dst, stats) // ignore: destination may not exist yet
	return ioprim.CreateLink(existingPath, dst, stats)
}

func fileReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func fingerprintFile(path string) (fingerprint.Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	defer f.Close()
	return fingerprint.Of(f)
}

func beToNanos(b [8]byte) int64 {
	var v int64
	for i := 0; i < 8; i++ {
		v = v<<8 | int64(b[i])
	}
	return v
}

func writeFrame(w *bufio.Writer, tag byte, body []byte) error {
	if err := wireproto.WriteFrame(w, tag, body); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) sendErr(w *bufio.Writer, kind wireproto.ErrKind, msg string) {
	e := wireproto.Err{Kind: kind, Message: msg}
	_ = writeFrame(w, wireproto.TagErr, e.Marshal())
}
