package transit

import "errors"

// ErrNoConnection is returned by Dial when every hint — direct and
// relay — failed to connect or failed its handshake (spec.md §4.3,
// TransitError::NoConnection).
var ErrNoConnection = errors.New("transit: no hint produced a working connection")

// ErrNonceRegression is returned by Pipe.Read when a record arrives
// with a nonce counter that does not equal the next expected value,
// per spec.md §4.3's strict per-direction monotonicity invariant
// (TransitError::Nonce). The connection is unusable after this; the
// caller should close it.
var ErrNonceRegression = errors.New("transit: nonce regression, connection is suspect")

// ErrHandshakeMismatch marks a single candidate connection as having
// failed the transit handshake (wrong hhash, a garbled preamble, or a
// line other than "go" where the go/nevermind line is expected). A
// peer that never answers fails with the connection's deadline error
// instead. Neither aborts the dial race as a whole; see Dial.
var ErrHandshakeMismatch = errors.New("transit: handshake mismatch")
