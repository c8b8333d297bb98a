package wormhole

// Create and Connect establish a Session: Create allocates a fresh
// nameplate and waits for a peer to join it; Connect claims a
// nameplate the user already has a code for. Both converge on
// handshake, which runs the SPAKE2 exchange and version swap of
// spec.md §4.2.
//
// The overall shape — dial the rendezvous server, run a PAKE,
// exchange one encrypted control message, then hand off to the
// caller — mirrors saljam-webwormhole's New/Join in this same file,
// with gospake2 standing in for cpace and the mailbox's pake/version
// phases standing in for the raw base64 frames the WebRTC signalling
// channel used.

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"wormhole.dev/internal/crypto"
	"wormhole.dev/rendezvous"
)

// Create allocates a nameplate and waits for a peer to complete the
// PAKE and version exchange.
//
// The resulting Code is sent on codeCh as soon as it's known — before
// Create blocks waiting for the peer — mirroring the slotc channel in
// saljam-webwormhole's New, so a front-end can display it the moment
// it's allocated rather than after the whole handshake completes.
// codeCh may be nil if the caller doesn't need the code (e.g. it
// already obtained one out of band).
func Create(ctx context.Context, appID, rendezvousURL, password string, version AppVersion, codeCh chan<- Code) (*Session, error) {
	side := rendezvous.RandSide()
	rc := rendezvous.NewClient(rendezvousURL, appID, side)
	if _, err := rc.Connect(ctx); err != nil {
		return nil, fmt.Errorf("wormhole: connect to rendezvous server: %w", err)
	}

	nameplate, err := rc.Allocate(ctx)
	if err != nil {
		return nil, fmt.Errorf("wormhole: allocate nameplate: %w", err)
	}
	mailbox, err := rc.ClaimNameplate(ctx, nameplate)
	if err != nil {
		return nil, fmt.Errorf("wormhole: claim nameplate: %w", err)
	}
	if err := rc.OpenMailbox(ctx, mailbox); err != nil {
		return nil, fmt.Errorf("wormhole: open mailbox: %w", err)
	}

	code := Code{Nameplate: nameplate, Password: password}
	if codeCh != nil {
		codeCh <- code
	}

	// Per spec.md §4.2, the creator releases the nameplate immediately
	// after the master key is derived (not at claim time): until PAKE
	// finishes there's no confirmation a peer actually showed up.
	release := func() error { return rc.ReleaseNameplate(ctx, nameplate) }
	return handshake(ctx, rc, appID, side, code.Password, version, release)
}

// Connect claims the mailbox for an already-known code and runs the
// same handshake as Create, from the other side.
func Connect(ctx context.Context, appID, rendezvousURL string, code Code, version AppVersion) (*Session, error) {
	side := rendezvous.RandSide()
	rc := rendezvous.NewClient(rendezvousURL, appID, side)
	if _, err := rc.Connect(ctx); err != nil {
		return nil, fmt.Errorf("wormhole: connect to rendezvous server: %w", err)
	}

	mailbox, err := rc.ClaimNameplate(ctx, code.Nameplate)
	if err != nil {
		return nil, fmt.Errorf("wormhole: claim nameplate: %w", err)
	}
	// The receiver already knows the nameplate maps to this mailbox by
	// construction (it typed the code), so there's nothing further to
	// learn from holding it: release it as soon as claimed, per
	// spec.md §9's general release-timing rule.
	if err := rc.ReleaseNameplate(ctx, code.Nameplate); err != nil {
		return nil, fmt.Errorf("wormhole: release nameplate: %w", err)
	}
	if err := rc.OpenMailbox(ctx, mailbox); err != nil {
		return nil, fmt.Errorf("wormhole: open mailbox: %w", err)
	}

	return handshake(ctx, rc, appID, side, code.Password, version, nil)
}

// handshake runs the SPAKE2 exchange and version swap of spec.md
// §4.2 over an already-open mailbox, then starts the dispatch loop
// that decrypts and orders subsequent application phases.
func handshake(ctx context.Context, rc *rendezvous.Client, appID, side, password string, version AppVersion, releaseNameplate func() error) (*Session, error) {
	msgA, pake, err := crypto.StartPAKE(appID, password)
	if err != nil {
		return nil, err
	}
	if err := rc.Add(ctx, "pake", msgA); err != nil {
		return nil, err
	}

	msgB, err := awaitPhase(ctx, rc, "pake")
	if err != nil {
		return nil, err
	}
	spakeOutput, err := pake.Finish(msgB)
	if err != nil {
		return nil, fmt.Errorf("wormhole: spake2: %w", err)
	}

	s := &Session{
		appID:     appID,
		side:      side,
		rc:        rc,
		masterKey: crypto.DeriveMasterKey(spakeOutput),
		appMsgs:   make(chan appMessage, 8),
		done:      make(chan struct{}),
	}
	s.verifier = crypto.Verifier(s.masterKey)

	if releaseNameplate != nil {
		if err := releaseNameplate(); err != nil {
			return nil, fmt.Errorf("wormhole: release nameplate: %w", err)
		}
	}

	versionKey := crypto.DerivePurposeKey(s.masterKey, appID, "version")
	localVersion, err := marshalVersion(version)
	if err != nil {
		return nil, err
	}
	sealedVersion, err := crypto.SealRandomNonce(crand.Reader, versionKey, localVersion)
	if err != nil {
		return nil, err
	}
	if err := rc.Add(ctx, "version", sealedVersion); err != nil {
		return nil, err
	}

	peerVersionSealed, err := awaitPhase(ctx, rc, "version")
	if err != nil {
		return nil, err
	}
	peerVersionPlain, err := crypto.OpenRandomNonce(versionKey, peerVersionSealed)
	if err != nil {
		// Per spec.md §4.2, the first decrypted message failing to
		// authenticate is treated as a wrong code, not tampering: the
		// two are indistinguishable this early in the session.
		return nil, ErrWrongCode
	}
	peerVersion, err := unmarshalVersion(peerVersionPlain)
	if err != nil {
		return nil, &ProtocolError{Reason: "version body is not valid JSON"}
	}
	s.PeerVersion = peerVersion

	go s.dispatch(rc.MsgChan())
	return s, nil
}

// awaitPhase waits for the named reserved phase ("pake" or "version")
// from the peer, decoding its hex body. It enforces spec.md's "at
// most one pake message per side" invariant implicitly: it only ever
// consumes the first message of each reserved phase it's asked for.
func awaitPhase(ctx context.Context, rc *rendezvous.Client, phase string) ([]byte, error) {
	for {
		select {
		case m, ok := <-rc.MsgChan():
			if !ok {
				return nil, ErrNoPeer
			}
			if m.Phase != phase {
				continue
			}
			body, err := hex.DecodeString(m.Body)
			if err != nil {
				return nil, &ProtocolError{Reason: "phase body is not valid hex"}
			}
			return body, nil
		case <-ctx.Done():
			return nil, ErrLonely
		}
	}
}

// dispatch decrypts and orders application-phase messages delivered
// after the handshake, per spec.md §5's phase-ordering rule.
func (s *Session) dispatch(in <-chan rendezvous.Msg) {
	defer close(s.appMsgs)
	defer close(s.done)
	for m := range in {
		if m.Phase == "pake" || m.Phase == "version" {
			s.setCloseErr(&ProtocolError{Reason: "duplicate " + m.Phase + " message"})
			return
		}
		phase, err := parsePhase(m.Phase)
		if err != nil {
			s.setCloseErr(&ProtocolError{Reason: "non-numeric application phase " + m.Phase})
			return
		}
		if phase != s.nextRecv {
			s.setCloseErr(&ProtocolError{Reason: fmt.Sprintf("out-of-order phase: got %d, expected %d", phase, s.nextRecv)})
			return
		}
		body, err := hex.DecodeString(m.Body)
		if err != nil {
			s.setCloseErr(&ProtocolError{Reason: "phase body is not valid hex"})
			return
		}
		plain, err := crypto.OpenRandomNonce(s.phaseKey(phase), body)
		if err != nil {
			// A MAC failure this far into the session, after the code
			// has already been confirmed by a successful version
			// exchange, indicates tampering rather than a wrong code.
			s.setCloseErr(ErrScared)
			s.Close(context.Background(), rendezvous.MoodScared)
			return
		}
		s.nextRecv++
		s.appMsgs <- appMessage{phase: phase, body: plain}
	}
	s.setCloseErr(ErrNoPeer)
}

func parsePhase(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if fmt.Sprintf("%d", n) != s {
		return 0, errors.New("not canonical decimal")
	}
	return n, nil
}
