package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaRoundTripSmallEdit(t *testing.T) {
	basis := []byte(strings.Repeat("ABCDEFGH", 2000)) // 16000 bytes
	target := make([]byte, len(basis))
	copy(target, basis)
	// Edit a chunk in the middle.
	copy(target[8000:8010], []byte("XXXXXXXXXX"))

	sig, err := ComputeSignature(bytes.NewReader(basis), int64(len(basis)))
	require.NoError(t, err)

	ops, err := MatchBlocks(bytes.NewReader(target), sig)
	require.NoError(t, err)

	matched, literal := Stats(ops)
	assert.Positive(t, matched, "most of a 10-byte edit in a 16000-byte file should match basis blocks")
	assert.Positive(t, literal)

	var out bytes.Buffer
	require.NoError(t, Apply(bytes.NewReader(basis), ops, &out, nil))
	assert.Equal(t, target, out.Bytes())
}

func TestDeltaNoBasisIsAllLiteral(t *testing.T) {
	target := []byte("brand new content, no basis available")
	ops, err := MatchBlocks(bytes.NewReader(target), Signature{})
	require.NoError(t, err)

	_, literal := Stats(ops)
	assert.EqualValues(t, len(target), literal)

	var out bytes.Buffer
	require.NoError(t, Apply(bytes.NewReader(nil), ops, &out, nil))
	assert.Equal(t, target, out.Bytes())
}

func TestDeltaIdenticalFileIsAllMatched(t *testing.T) {
	data := []byte(strings.Repeat("identical content block ", 500))

	sig, err := ComputeSignature(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	ops, err := MatchBlocks(bytes.NewReader(data), sig)
	require.NoError(t, err)

	_, literal := Stats(ops)
	assert.Zero(t, literal, "an identical file should require zero literal bytes")

	var out bytes.Buffer
	require.NoError(t, Apply(bytes.NewReader(data), ops, &out, nil))
	assert.Equal(t, data, out.Bytes())
}

func TestChooseBlockSizeClamps(t *testing.T) {
	assert.Equal(t, 512, ChooseBlockSize(1))
	assert.Equal(t, 131072, ChooseBlockSize(1<<40))
}
