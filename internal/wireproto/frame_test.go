package wireproto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TagFileSend, []byte("payload bytes")))

	tag, body, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagFileSend, tag)
	assert.Equal(t, "payload bytes", string(body))
}

func TestFrameRoundTripEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TagBye, nil))

	tag, body, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagBye, tag)
	assert.Empty(t, body)
}

func TestFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	huge := make([]byte, MaxFrameSize+1)
	err := WriteFrame(&buf, TagBytes, huge)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameShortHeader(t *testing.T) {
	r := strings.NewReader("\x00\x00")
	_, _, err := ReadFrame(r)
	assert.Error(t, err)
}

func TestMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TagHello, []byte("one")))
	require.NoError(t, WriteFrame(&buf, TagEnv, []byte("two")))

	tag, body, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagHello, tag)
	assert.Equal(t, "one", string(body))

	tag, body, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagEnv, tag)
	assert.Equal(t, "two", string(body))
}
