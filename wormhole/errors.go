package wormhole

import "errors"

// CodeError reports a malformed code: bad nameplate syntax, empty
// password, or (in stricter hosts) an obviously weak password.
type CodeError struct {
	Reason string
}

func (e *CodeError) Error() string { return "wormhole: bad code: " + e.Reason }

// ProtocolError reports a violation of the mailbox message protocol:
// a duplicate pake or version message, a non-numeric, out-of-order or
// repeated application phase, or a body that is not valid hex (or, for
// the version message, not valid JSON). The peer's version message is
// not checked for required abilities.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "wormhole: protocol error: " + e.Reason }

var (
	// ErrWrongCode is returned when the peer's first encrypted message
	// fails to decrypt under the derived master key. Per spec.md §4.2
	// this is treated as an incorrect code rather than tampering: the
	// two cases are indistinguishable to the mailbox server, and so to
	// any external observer, and are handled identically.
	ErrWrongCode = errors.New("wormhole: wrong code")

	// ErrScared is returned, and sent to the peer as a closed mailbox
	// with mood "scared", when a MAC check fails on a message received
	// after the handshake has already confirmed the code (so the
	// failure indicates tampering, not a typo).
	ErrScared = errors.New("wormhole: peer message failed authentication")

	// ErrNoPeer is returned when the mailbox is closed, or the
	// connection is lost, before the awaited peer message arrives.
	ErrNoPeer = errors.New("wormhole: no peer")

	// ErrLonely is returned when the context is cancelled while still
	// waiting for the peer's first message (no peer ever joined).
	ErrLonely = errors.New("wormhole: cancelled waiting for peer")

	// ErrCancelled names host-initiated cancellation. No function in
	// this package returns it: a cancelled context surfaces as
	// ErrLonely while waiting for the peer's pake or version message
	// and as the context's own error (possibly wrapped) elsewhere, and
	// cancellation does not close the mailbox; Close does that.
	ErrCancelled = errors.New("wormhole: cancelled")

	// ErrClosed is returned by Send/Receive once the session has been
	// closed.
	ErrClosed = errors.New("wormhole: session closed")
)
