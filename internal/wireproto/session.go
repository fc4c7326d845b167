package wireproto

import "fmt"

// State is a session's position in the protocol's state machine.
type State int

const (
	Negotiating State = iota
	Ready
	InFile
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Negotiating:
		return "NEGOTIATING"
	case Ready:
		return "READY"
	case InFile:
		return "IN_FILE"
	case Draining:
		return "DRAINING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Event names the transitions a session can make.
type Event int

const (
	EventHelloAccepted Event = iota
	EventHelloRejected
	EventFileSendIssued
	EventFileAckReceived
	EventBye
	EventClosed
	EventError
)

// ErrInvalidTransition is returned by (*Session).Advance when an event
// isn't legal in the session's current state — e.g. a FILE_SEND
// arriving before the handshake completed, or a FILE_ACK with no file
// in flight.
type ErrInvalidTransition struct {
	From  State
	Event Event
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("wireproto: event %d not valid in state %s", e.Event, e.From)
}

// Session tracks one connection's protocol state and the feature set
// the handshake granted it. It holds no I/O — callers drive it
// explicitly by calling Advance as frames are sent or received, which
// keeps the state machine unit-testable without a live connection.
type Session struct {
	state State
	flags Flags
}

// NewSession returns a Session in the initial NEGOTIATING state with
// no features granted.
func NewSession() *Session {
	return &Session{state: Negotiating}
}

// State returns the session's current state.
func (s *Session) State() State {
	return s.state
}

// SetNegotiated records the granted feature set once HELLO_ACK has
// been exchanged. Both sides call it with the same value: the server
// with what it granted, the client with what the ack carried.
func (s *Session) SetNegotiated(f Flags) {
	s.flags = f
}

// Negotiated returns the granted feature set; zero until negotiation
// completes, and raw copy is always available regardless.
func (s *Session) Negotiated() Flags {
	return s.flags
}

// Advance applies event to the session, returning an error if it is
// not legal from the current state. The transition table:
// NEGOTIATING -> READY on an accepted HELLO; READY -> IN_FILE -> READY
// once per file; READY -> DRAINING on BYE; DRAINING -> CLOSED. A
// rejected HELLO or an error closes the session from NEGOTIATING,
// READY or IN_FILE.
func (s *Session) Advance(ev Event) error {
	switch s.state {
	case Negotiating:
		switch ev {
		case EventHelloAccepted:
			s.state = Ready
			return nil
		case EventHelloRejected, EventError:
			s.state = Closed
			return nil
		}
	case Ready:
		switch ev {
		case EventFileSendIssued:
			s.state = InFile
			return nil
		case EventBye:
			s.state = Draining
			return nil
		case EventError:
			s.state = Closed
			return nil
		}
	case InFile:
		switch ev {
		case EventFileAckReceived:
			s.state = Ready
			return nil
		case EventError:
			s.state = Closed
			return nil
		}
	case Draining:
		switch ev {
		case EventClosed:
			s.state = Closed
			return nil
		}
	case Closed:
		// No event is valid once closed.
	}
	return ErrInvalidTransition{From: s.state, Event: ev}
}
