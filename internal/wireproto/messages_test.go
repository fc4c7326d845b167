package wireproto

import (
	"testing"

	"github.com/eacopy/eacopy/internal/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelloRoundTrip(t *testing.T) {
	m := Hello{
		ProtocolVersion:   ProtocolVersion,
		Flags:             FlagCompression | FlagDelta,
		ClientID:          "client-1",
		SecretFingerprint: fingerprint.OfBytes([]byte("shared-secret")),
	}
	got, err := UnmarshalHello(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestHelloAckRoundTrip(t *testing.T) {
	m := HelloAck{
		ProtocolVersion: ProtocolVersion,
		Accepted:        true,
		Granted:         FlagCompression,
		SessionID:       "sess-42",
	}
	got, err := UnmarshalHelloAck(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestHelloAckRejectedRoundTrip(t *testing.T) {
	m := HelloAck{ProtocolVersion: ProtocolVersion, Accepted: false, Reason: "secret mismatch"}
	got, err := UnmarshalHelloAck(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "none", Flags(0).String())
	assert.Equal(t, "compression+delta", (FlagCompression | FlagDelta).String())
	assert.True(t, (FlagCompression | FlagDelta).Has(FlagDelta))
	assert.False(t, FlagCompression.Has(FlagDelta))
}

func TestFileSendRoundTrip(t *testing.T) {
	m := FileSend{
		Name:    "dir/file.bin",
		Size:    1 << 20,
		ModTime: [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		FP:      fingerprint.OfBytes([]byte("content")),
	}
	got, err := UnmarshalFileSend(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestFileRecvRoundTrip(t *testing.T) {
	m := FileRecv{Decision: SendDelta, RefName: "dir/file.bin", RefFP: fingerprint.OfBytes([]byte("basis"))}
	got, err := UnmarshalFileRecv(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestFileAckRoundTrip(t *testing.T) {
	m := FileAck{FP: fingerprint.OfBytes([]byte("x")), Verified: true}
	got, err := UnmarshalFileAck(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestStatsRoundTrip(t *testing.T) {
	m := Stats{BytesSent: 10, BytesReceived: 20, FilesSent: 3, FilesSkipped: 1}
	got, err := UnmarshalStats(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestErrRoundTrip(t *testing.T) {
	m := Err{Kind: ErrKindDiskFull, Message: "no space left on device"}
	got, err := UnmarshalErr(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestPrimeRoundTrip(t *testing.T) {
	m := Prime{Dir: "/srv/assets"}
	got, err := UnmarshalPrime(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestEnvRoundTrip(t *testing.T) {
	m := Env{FileCount: 42, BWLimitBytesPS: 1 << 24}
	got, err := UnmarshalEnv(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestUnmarshalTruncatedFails(t *testing.T) {
	_, err := UnmarshalFileSend([]byte{0, 1, 'a'})
	assert.ErrorIs(t, err, ErrShortMessage)
}

func TestDecisionPrecedenceOrdering(t *testing.T) {
	assert.Less(t, int(AlreadyHave), int(SendDelta))
	assert.Less(t, int(SendDelta), int(SendCompressed))
	assert.Less(t, int(SendCompressed), int(SendRaw))
}
