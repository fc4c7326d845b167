package wireproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_HappyPath(t *testing.T) {
	s := NewSession()
	assert.Equal(t, Negotiating, s.State())

	require.NoError(t, s.Advance(EventHelloAccepted))
	assert.Equal(t, Ready, s.State())

	// Two files back to back.
	for range 2 {
		require.NoError(t, s.Advance(EventFileSendIssued))
		assert.Equal(t, InFile, s.State())
		require.NoError(t, s.Advance(EventFileAckReceived))
		assert.Equal(t, Ready, s.State())
	}

	require.NoError(t, s.Advance(EventBye))
	assert.Equal(t, Draining, s.State())
	require.NoError(t, s.Advance(EventClosed))
	assert.Equal(t, Closed, s.State())
}

func TestSession_RejectedHandshake(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Advance(EventHelloRejected))
	assert.Equal(t, Closed, s.State())
}

func TestSession_ErrorClosesFromAnyActiveState(t *testing.T) {
	for _, setup := range []struct {
		name   string
		events []Event
	}{
		{"negotiating", nil},
		{"ready", []Event{EventHelloAccepted}},
		{"in_file", []Event{EventHelloAccepted, EventFileSendIssued}},
	} {
		t.Run(setup.name, func(t *testing.T) {
			s := NewSession()
			for _, ev := range setup.events {
				require.NoError(t, s.Advance(ev))
			}
			require.NoError(t, s.Advance(EventError))
			assert.Equal(t, Closed, s.State())
		})
	}
}

func TestSession_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		bad    Event
	}{
		{"file_send before handshake", nil, EventFileSendIssued},
		{"bye before handshake", nil, EventBye},
		{"ack without file", []Event{EventHelloAccepted}, EventFileAckReceived},
		{"file_send while in file", []Event{EventHelloAccepted, EventFileSendIssued}, EventFileSendIssued},
		{"bye while in file", []Event{EventHelloAccepted, EventFileSendIssued}, EventBye},
		{"anything after close", []Event{EventHelloRejected}, EventHelloAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			for _, ev := range tt.events {
				require.NoError(t, s.Advance(ev))
			}
			before := s.State()
			err := s.Advance(tt.bad)
			require.Error(t, err)

			var invalid ErrInvalidTransition
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, before, invalid.From)
			assert.Equal(t, before, s.State(), "failed transition must not move the state")
		})
	}
}
