package wireproto

import (
	"strings"

	"github.com/eacopy/eacopy/internal/fingerprint"
)

// ProtocolVersion is bumped whenever a wire-incompatible change is made
// to any message in this file.
const ProtocolVersion uint16 = 1

// Message tags. One byte each, carried in the frame header.
const (
	TagHello    byte = 1
	TagHelloAck byte = 2
	TagEnv      byte = 3
	TagFileSend byte = 4
	TagFileRecv byte = 5
	TagBytes    byte = 6
	TagEndBytes byte = 7
	TagFileAck  byte = 8
	TagPrime    byte = 9
	TagStats    byte = 10
	TagBye      byte = 11
	TagErr      byte = 12
)

// TagName returns a human-readable name for a tag, for logging.
func TagName(tag byte) string {
	switch tag {
	case TagHello:
		return "HELLO"
	case TagHelloAck:
		return "HELLO_ACK"
	case TagEnv:
		return "ENV"
	case TagFileSend:
		return "FILE_SEND"
	case TagFileRecv:
		return "FILE_RECV"
	case TagBytes:
		return "BYTES"
	case TagEndBytes:
		return "END_BYTES"
	case TagFileAck:
		return "FILE_ACK"
	case TagPrime:
		return "PRIME"
	case TagStats:
		return "STATS"
	case TagBye:
		return "BYE"
	case TagErr:
		return "ERR"
	default:
		return "UNKNOWN"
	}
}

// Flags is the feature bitmask carried in HELLO (requested) and
// HELLO_ACK (granted). Raw copy needs no flag: it is always mutually
// supported, so a session with an empty grant can still move files.
type Flags byte

const (
	FlagCompression Flags = 1 << 0
	FlagDelta       Flags = 1 << 1
	FlagSecureCopy  Flags = 1 << 2
)

// Has reports whether every bit in x is set in f.
func (f Flags) Has(x Flags) bool { return f&x == x }

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(FlagCompression) {
		parts = append(parts, "compression")
	}
	if f.Has(FlagDelta) {
		parts = append(parts, "delta")
	}
	if f.Has(FlagSecureCopy) {
		parts = append(parts, "secure-copy")
	}
	return strings.Join(parts, "+")
}

// Decision is the server's disposition for a requested file transfer.
// Precedence: ALREADY_HAVE beats SEND_DELTA beats SEND_COMPRESSED
// beats SEND_RAW.
type Decision byte

const (
	AlreadyHave    Decision = 0
	SendDelta      Decision = 1
	SendCompressed Decision = 2
	SendRaw        Decision = 3
)

func (d Decision) String() string {
	switch d {
	case AlreadyHave:
		return "ALREADY_HAVE"
	case SendDelta:
		return "SEND_DELTA"
	case SendCompressed:
		return "SEND_COMPRESSED"
	case SendRaw:
		return "SEND_RAW"
	default:
		return "UNKNOWN"
	}
}

// Hello is the client's opening message: protocol version, the feature
// flags the client wants for this session, a non-cryptographic
// pre-shared secret fingerprint (an identity check on a trusted link,
// not an authentication scheme), and the client's self-reported
// identity for logging.
type Hello struct {
	ProtocolVersion   uint16
	Flags             Flags
	ClientID          string
	SecretFingerprint fingerprint.Fingerprint
}

func (m Hello) Marshal() []byte {
	e := &encBuf{}
	e.putUint16(m.ProtocolVersion)
	e.putByte(byte(m.Flags))
	e.putString(m.ClientID)
	e.putFingerprint(m.SecretFingerprint)
	return e.b
}

func UnmarshalHello(body []byte) (Hello, error) {
	d := &decBuf{b: body}
	var m Hello
	var err error
	if m.ProtocolVersion, err = d.getUint16(); err != nil {
		return m, err
	}
	var f byte
	if f, err = d.getByte(); err != nil {
		return m, err
	}
	m.Flags = Flags(f)
	if m.ClientID, err = d.getString(); err != nil {
		return m, err
	}
	if m.SecretFingerprint, err = d.getFingerprint(); err != nil {
		return m, err
	}
	return m, nil
}

// HelloAck is the server's response: whether the handshake is
// accepted (and if not, why), which of the requested feature flags the
// server grants, and the server-assigned session id used to correlate
// both sides' logs.
type HelloAck struct {
	ProtocolVersion uint16
	Accepted        bool
	Granted         Flags
	SessionID       string
	Reason          string
}

func (m HelloAck) Marshal() []byte {
	e := &encBuf{}
	e.putUint16(m.ProtocolVersion)
	e.putBool(m.Accepted)
	e.putByte(byte(m.Granted))
	e.putString(m.SessionID)
	e.putString(m.Reason)
	return e.b
}

func UnmarshalHelloAck(body []byte) (HelloAck, error) {
	d := &decBuf{b: body}
	var m HelloAck
	var err error
	if m.ProtocolVersion, err = d.getUint16(); err != nil {
		return m, err
	}
	if m.Accepted, err = d.getBool(); err != nil {
		return m, err
	}
	var g byte
	if g, err = d.getByte(); err != nil {
		return m, err
	}
	m.Granted = Flags(g)
	if m.SessionID, err = d.getString(); err != nil {
		return m, err
	}
	if m.Reason, err = d.getString(); err != nil {
		return m, err
	}
	return m, nil
}

// Env negotiates session-scoped parameters once the handshake has
// succeeded: how many files the client intends to send, and the
// optional bandwidth cap the client applies to its own writes for this
// session. The server only logs both values.
type Env struct {
	FileCount      uint64
	BWLimitBytesPS uint64
}

func (m Env) Marshal() []byte {
	e := &encBuf{}
	e.putUint64(m.FileCount)
	e.putUint64(m.BWLimitBytesPS)
	return e.b
}

func UnmarshalEnv(body []byte) (Env, error) {
	d := &decBuf{b: body}
	var m Env
	var err error
	if m.FileCount, err = d.getUint64(); err != nil {
		return m, err
	}
	if m.BWLimitBytesPS, err = d.getUint64(); err != nil {
		return m, err
	}
	return m, nil
}

// FileSend is the client's request to transfer one file: its identity
// key and content fingerprint, so the server can make its decision
// before any bytes move.
type FileSend struct {
	Name    string
	Size    uint64
	ModTime [8]byte
	FP      fingerprint.Fingerprint
}

func (m FileSend) Marshal() []byte {
	e := &encBuf{}
	e.putString(m.Name)
	e.putUint64(m.Size)
	e.putTime(m.ModTime)
	e.putFingerprint(m.FP)
	return e.b
}

func UnmarshalFileSend(body []byte) (FileSend, error) {
	d := &decBuf{b: body}
	var m FileSend
	var err error
	if m.Name, err = d.getString(); err != nil {
		return m, err
	}
	if m.Size, err = d.getUint64(); err != nil {
		return m, err
	}
	if m.ModTime, err = d.getTime(); err != nil {
		return m, err
	}
	if m.FP, err = d.getFingerprint(); err != nil {
		return m, err
	}
	return m, nil
}

// FileRecv is the server's decision in reply to FileSend: how (or
// whether) the file body should follow. RefName/RefFP are populated
// only for SendDelta, identifying the basis the client should diff
// against.
type FileRecv struct {
	Decision Decision
	RefName  string
	RefFP    fingerprint.Fingerprint
}

func (m FileRecv) Marshal() []byte {
	e := &encBuf{}
	e.putByte(byte(m.Decision))
	e.putString(m.RefName)
	e.putFingerprint(m.RefFP)
	return e.b
}

func UnmarshalFileRecv(body []byte) (FileRecv, error) {
	d := &decBuf{b: body}
	var m FileRecv
	var err error
	tag, err := d.getByte()
	if err != nil {
		return m, err
	}
	m.Decision = Decision(tag)
	if m.RefName, err = d.getString(); err != nil {
		return m, err
	}
	if m.RefFP, err = d.getFingerprint(); err != nil {
		return m, err
	}
	return m, nil
}

// Bytes carries one chunk of a file body (raw, zstd-compressed, or a
// serialized delta Op stream, according to the decision that preceded
// it). Chunks are capped at DataChunkSize on the sending side.
type Bytes struct {
	Data []byte
}

func (m Bytes) Marshal() []byte {
	return m.Data
}

func UnmarshalBytes(body []byte) Bytes {
	return Bytes{Data: body}
}

// EndBytes marks the end of the current file's body stream.
type EndBytes struct{}

func (EndBytes) Marshal() []byte { return nil }

// FileAck is the server's post-transfer verification result: the
// fingerprint it computed over the reconstructed file, and whether it
// matched what FileSend promised. A mismatch means the server renamed
// the partial/corrupt result to its ".corrupt" path instead of
// publishing it.
type FileAck struct {
	FP       fingerprint.Fingerprint
	Verified bool
}

func (m FileAck) Marshal() []byte {
	e := &encBuf{}
	e.putFingerprint(m.FP)
	e.putBool(m.Verified)
	return e.b
}

func UnmarshalFileAck(body []byte) (FileAck, error) {
	d := &decBuf{b: body}
	var m FileAck
	var err error
	if m.FP, err = d.getFingerprint(); err != nil {
		return m, err
	}
	if m.Verified, err = d.getBool(); err != nil {
		return m, err
	}
	return m, nil
}

// Prime asks the server to begin background priming of a directory
// already present on the server side. The server sends no reply.
type Prime struct {
	Dir string
}

func (m Prime) Marshal() []byte {
	e := &encBuf{}
	e.putString(m.Dir)
	return e.b
}

func UnmarshalPrime(body []byte) (Prime, error) {
	d := &decBuf{b: body}
	var m Prime
	var err error
	if m.Dir, err = d.getString(); err != nil {
		return m, err
	}
	return m, nil
}

// Stats is exchanged at session end (either direction) summarizing
// what that side observed.
type Stats struct {
	BytesSent     uint64
	BytesReceived uint64
	FilesSent     uint64
	FilesSkipped  uint64
}

func (m Stats) Marshal() []byte {
	e := &encBuf{}
	e.putUint64(m.BytesSent)
	e.putUint64(m.BytesReceived)
	e.putUint64(m.FilesSent)
	e.putUint64(m.FilesSkipped)
	return e.b
}

func UnmarshalStats(body []byte) (Stats, error) {
	d := &decBuf{b: body}
	var m Stats
	var err error
	if m.BytesSent, err = d.getUint64(); err != nil {
		return m, err
	}
	if m.BytesReceived, err = d.getUint64(); err != nil {
		return m, err
	}
	if m.FilesSent, err = d.getUint64(); err != nil {
		return m, err
	}
	if m.FilesSkipped, err = d.getUint64(); err != nil {
		return m, err
	}
	return m, nil
}

// Bye cleanly ends a session.
type Bye struct{}

func (Bye) Marshal() []byte { return nil }

// ErrKind classifies an Err message by what recovery it permits.
type ErrKind byte

const (
	ErrKindUnknown             ErrKind = 0
	ErrKindSourceMissing       ErrKind = 1
	ErrKindDestinationBusy     ErrKind = 2
	ErrKindAccessDenied        ErrKind = 3
	ErrKindCrossVolumeLink     ErrKind = 4
	ErrKindLinkLimit           ErrKind = 5
	ErrKindNetworkTransient    ErrKind = 6
	ErrKindProtocolViolation   ErrKind = 7
	ErrKindCodecCorrupt        ErrKind = 8
	ErrKindDatabaseConsistency ErrKind = 9
	ErrKindDiskFull            ErrKind = 10
	ErrKindCancelled           ErrKind = 11
)

// Err carries a classified failure from one side to the other.
type Err struct {
	Kind    ErrKind
	Message string
}

func (m Err) Marshal() []byte {
	e := &encBuf{}
	e.putByte(byte(m.Kind))
	e.putString(m.Message)
	return e.b
}

func UnmarshalErr(body []byte) (Err, error) {
	d := &decBuf{b: body}
	var m Err
	var err error
	var k byte
	if k, err = d.getByte(); err != nil {
		return m, err
	}
	m.Kind = ErrKind(k)
	if m.Message, err = d.getString(); err != nil {
		return m, err
	}
	return m, nil
}
