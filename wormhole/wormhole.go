// Package wormhole implements the key-agreement and encrypted
// message-phase session described in spec.md §4.2: it composes a
// rendezvous client with SPAKE2 to turn a short code into a shared
// master key, then layers a sequence of authenticated,
// monotonically-numbered application messages on top of the mailbox.
//
// This is the spiritual descendant of saljam-webwormhole's
// wormhole/dial.go, which did the equivalent job for a WebRTC
// PeerConnection's offer/answer exchange. The PAKE, HKDF and
// encrypted-JSON-over-websocket shape survives; the WebRTC-specific
// parts (pion/webrtc signalling, cpace) do not, since this session
// hands off to the transit package instead of to a DataChannel.
package wormhole

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"wormhole.dev/internal/crypto"
	"wormhole.dev/rendezvous"
)

// AppVersion is the capability descriptor exchanged once, as the
// "version" phase body, by each side (spec.md §3).
type AppVersion map[string]interface{}

// Session is an established wormhole key-agreement session: a
// rendezvous client plus a master key, ready to exchange authenticated
// application-phase messages.
type Session struct {
	appID string
	side  string
	rc    *rendezvous.Client

	masterKey [32]byte
	verifier  [32]byte

	PeerVersion AppVersion

	nextSend int
	nextRecv int

	appMsgs chan appMessage
	done    chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (s *Session) setCloseErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr == nil {
		s.closeErr = err
	}
}

func (s *Session) getCloseErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

type appMessage struct {
	phase int
	body  []byte
}

// Verifier returns the 32-byte fingerprint derived from the master
// key, suitable for an out-of-band human comparison (spec.md §4.2).
func (s *Session) Verifier() [32]byte { return s.verifier }

// Side returns this session's randomly generated Side identifier.
func (s *Session) Side() string { return s.side }

// Send encrypts body under the next outgoing phase's purpose key and
// appends it to the mailbox.
func (s *Session) Send(ctx context.Context, body []byte) error {
	phase := s.nextSend
	s.nextSend++
	key := s.phaseKey(phase)
	sealed, err := crypto.SealRandomNonce(crand.Reader, key, body)
	if err != nil {
		return err
	}
	return s.rc.Add(ctx, strconv.Itoa(phase), sealed)
}

// Receive blocks until the next application-phase message arrives,
// decrypts it, and returns its plaintext body.
//
// Receive enforces spec.md's phase-ordering invariant: phases must
// arrive in ascending order with no gaps. A gap, duplicate, or failed
// MAC ends the session; see dial.go's dispatch loop for how these are
// detected and translated into ProtocolError, ErrScared or ErrNoPeer.
func (s *Session) Receive(ctx context.Context) ([]byte, error) {
	select {
	case m, ok := <-s.appMsgs:
		if !ok {
			return nil, s.getCloseErr()
		}
		return m.body, nil
	case <-s.done:
		return nil, s.getCloseErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the mailbox with the given mood and returns once the
// server has acknowledged it (spec.md §4.1/§5). It sends no nameplate
// release: Create and Connect have already released the nameplate by
// the time they return a Session.
func (s *Session) Close(ctx context.Context, mood rendezvous.Mood) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.rc.CloseMailbox(ctx, mood)
		s.setCloseErr(ErrClosed)
	})
	return err
}

func (s *Session) phaseKey(phase int) crypto.Key {
	return crypto.DerivePurposeKey(s.masterKey, s.appID, crypto.Purpose(fmt.Sprintf("phase:%d", phase)))
}

// TransitKeys derives the two directional subkeys transit uses to
// seal and open its record pipe (spec.md §4.3).
func (s *Session) TransitKeys() (sender, receiver crypto.Key) {
	return crypto.DerivePurposeKey(s.masterKey, s.appID, "transit_sender"),
		crypto.DerivePurposeKey(s.masterKey, s.appID, "transit_receiver")
}

// marshalVersion and unmarshalVersion are small helpers kept separate
// from dial.go's handshake control flow so the JSON shape of AppVersion is
// defined in one place.
func marshalVersion(v AppVersion) ([]byte, error) { return json.Marshal(v) }

func unmarshalVersion(b []byte) (AppVersion, error) {
	var v AppVersion
	err := json.Unmarshal(b, &v)
	return v, err
}
