package transit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"wormhole.dev/internal/crypto"
)

// Role is which side of the transit byte stream this process plays.
// It determines both which handshake line to send and, via
// Session.TransitKeys, which subkey seals versus opens.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// ConnectionType reports how the winning Pipe in a Dial race was
// established, per spec.md §8's S4 scenario (TransitInfo.connection_type).
type ConnectionType int

const (
	ConnectionDirect ConnectionType = iota
	ConnectionRelay
)

// DialTimeout bounds a single candidate's TCP connect attempt
// (spec.md §5).
const DialTimeout = 10 * time.Second

// HandshakeTimeout bounds how long a connected candidate has to
// complete the transit handshake (spec.md §5).
const HandshakeTimeout = 30 * time.Second

// Dial races a TCP connection attempt against every hint — direct and
// relay — and returns the first one to complete the transit
// handshake and win the tie-break (spec.md §4.3, §9's "structured
// concurrent fan-out" design note). sendKey/recvKey are this side's
// two directional subkeys from Session.TransitKeys; role says which
// of them is "ours" to announce in the handshake line.
//
// Any individual hint that fails to connect, or whose handshake
// doesn't match, is dropped silently; Dial only fails with
// ErrNoConnection once every hint has been exhausted.
func Dial(ctx context.Context, role Role, hints []Hint, sendKey, recvKey crypto.Key) (*Pipe, ConnectionType, error) {
	type candidate struct {
		addr     string
		relay    bool
		relayVia string
	}
	var candidates []candidate
	for _, h := range hints {
		switch h.Kind {
		case HintDirectTCP:
			candidates = append(candidates, candidate{addr: h.addr()})
		case HintRelayTCP:
			for _, sub := range h.Hints {
				if sub.Kind != HintDirectTCP {
					continue
				}
				candidates = append(candidates, candidate{addr: sub.addr(), relay: true, relayVia: h.Name})
			}
		}
	}
	if len(candidates) == 0 {
		return nil, 0, ErrNoConnection
	}

	type result struct {
		pipe    net.Conn
		relay   bool
		err     error
	}
	results := make(chan result, len(candidates))
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, c := range candidates {
		c := c
		go func() {
			conn, err := dialOne(raceCtx, c.addr, c.relay, role, sendKey, recvKey)
			if err != nil {
				results <- result{err: err}
				return
			}
			results <- result{pipe: conn, relay: c.relay}
		}()
	}

	var winner net.Conn
	var winnerIsRelay bool
	var selected int32
	consumed := 0

	switch role {
	case RoleSender:
		// The sender picks the first candidate whose handshake
		// completes. Every later completion — including ones that
		// race in after selection — gets "nevermind".
		for i := 0; i < len(candidates); i++ {
			select {
			case r := <-results:
				consumed++
				if r.err != nil {
					continue
				}
				if atomic.CompareAndSwapInt32(&selected, 0, 1) {
					fmt.Fprintf(r.pipe, "go\n")
					winner, winnerIsRelay = r.pipe, r.relay
					cancel()
				} else {
					fmt.Fprintf(r.pipe, "nevermind\n")
					r.pipe.Close()
				}
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
			if winner != nil {
				break
			}
		}
	case RoleReceiver:
		// Each successful candidate waits for the sender's go/nevermind
		// line; the first to read "go" wins.
		for i := 0; i < len(candidates); i++ {
			select {
			case r := <-results:
				consumed++
				if r.err != nil {
					continue
				}
				line, err := bufio.NewReader(r.pipe).ReadString('\n')
				if err != nil || line != "go\n" {
					r.pipe.Close()
					continue
				}
				winner, winnerIsRelay = r.pipe, r.relay
				cancel()
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
			if winner != nil {
				break
			}
		}
	}

	// Drain and close any remaining candidates that finish after we've
	// already selected one, so no socket is orphaned.
	go func(remaining int) {
		for ; remaining > 0; remaining-- {
			r := <-results
			if r.err == nil && r.pipe != winner {
				if role == RoleSender {
					fmt.Fprintf(r.pipe, "nevermind\n")
				}
				r.pipe.Close()
			}
		}
	}(len(candidates) - consumed)

	if winner == nil {
		return nil, 0, ErrNoConnection
	}

	ct := ConnectionDirect
	if winnerIsRelay {
		ct = ConnectionRelay
	}
	pipe := NewPipe(winner, roleKey(role, sendKey, recvKey, true), roleKey(role, sendKey, recvKey, false))
	return pipe, ct, nil
}

// roleKey picks which of sendKey/recvKey seals outgoing records and
// which opens incoming ones, given which role we're playing.
// forSend=true asks for the sealing key.
func roleKey(role Role, sendKey, recvKey crypto.Key, forSend bool) crypto.Key {
	switch role {
	case RoleSender:
		if forSend {
			return sendKey
		}
		return recvKey
	default: // RoleReceiver
		if forSend {
			return recvKey
		}
		return sendKey
	}
}

// dialOne connects to addr, optionally issues the relay preamble, and
// runs the transit handshake.
func dialOne(ctx context.Context, addr string, relay bool, role Role, sendKey, recvKey crypto.Key) (net.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	conn.SetDeadline(time.Now().Add(HandshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	if relay {
		// Both sides pass the transit_sender key as sendKey regardless
		// of their own role, so its hash doubles as a role-agnostic
		// handle the relay can use to pair the two connections.
		relayHandle := hex.EncodeToString(hhash(sendKey))
		if _, err := fmt.Fprintf(conn, "please relay %s\n", relayHandle); err != nil {
			conn.Close()
			return nil, err
		}
	}

	if err := runHandshake(conn, role, sendKey, recvKey); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// sendKeyOf returns the key that belongs to role: sendKey for
// RoleSender, recvKey for RoleReceiver. Both peers pass the same
// sendKey/recvKey pair, so runHandshake builds identical sender and
// receiver lines on both sides.
func sendKeyOf(role Role, sendKey, recvKey crypto.Key) crypto.Key {
	if role == RoleSender {
		return sendKey
	}
	return recvKey
}

// runHandshake performs the mutual transit handshake of spec.md
// §4.3: we announce our role and the hash of the key for that role,
// then check the peer's matching announcement for the other role.
//
// Grounded on the length-prefixed hello exchange at the end of
// saljam-webwormhole/cmd/rtcpipe/spake.go's NewTunnel, generalized
// from a single shared key to the two role-specific subkeys spec.md
// §4.3 specifies.
func runHandshake(conn net.Conn, role Role, sendKey, recvKey crypto.Key) error {
	senderLine := fmt.Sprintf("transit sender %s\n", hex.EncodeToString(hhash(sendKeyOf(RoleSender, sendKey, recvKey))))
	receiverLine := fmt.Sprintf("transit receiver %s\n", hex.EncodeToString(hhash(sendKeyOf(RoleReceiver, sendKey, recvKey))))

	ourLine, theirLine := senderLine, receiverLine
	if role == RoleReceiver {
		ourLine, theirLine = receiverLine, senderLine
	}

	if _, err := conn.Write([]byte(ourLine)); err != nil {
		return err
	}
	br := bufio.NewReader(conn)
	got, err := br.ReadString('\n')
	if err != nil {
		return err
	}
	if got != theirLine {
		return ErrHandshakeMismatch
	}
	return nil
}

func hhash(key crypto.Key) []byte {
	h := sha256.Sum256(key.Bytes[:])
	return h[:]
}

// Listen opens a TCP listener a caller can advertise via
// LocalDirectHints, for the case where this side turns out to be the
// one the peer can reach directly.
func Listen() (net.Listener, error) {
	return net.Listen("tcp", ":0")
}

// Accept waits for one incoming connection on ln and completes the
// transit handshake on it as role, returning an established Pipe.
// Used alongside Dial by Race, since either side of a direct
// connection may turn out to be the reachable one.
func Accept(ctx context.Context, ln net.Listener, role Role, sendKey, recvKey crypto.Key) (*Pipe, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			ch <- result{err: err}
			return
		}
		conn.SetDeadline(time.Now().Add(HandshakeTimeout))
		if err := runHandshake(conn, role, sendKey, recvKey); err != nil {
			conn.Close()
			ch <- result{err: err}
			return
		}

		// Accept only ever sees one candidate, so the go/nevermind
		// tie-break Dial's multiple candidates need is trivial here:
		// the sender side always says go, the receiver side always
		// waits for it.
		if role == RoleSender {
			if _, err := fmt.Fprintf(conn, "go\n"); err != nil {
				conn.Close()
				ch <- result{err: err}
				return
			}
		} else {
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err != nil || line != "go\n" {
				conn.Close()
				if err == nil {
					err = ErrHandshakeMismatch
				}
				ch <- result{err: err}
				return
			}
		}

		conn.SetDeadline(time.Time{})
		ch <- result{conn: conn}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return NewPipe(r.conn, roleKey(role, sendKey, recvKey, true), roleKey(role, sendKey, recvKey, false)), nil
	case <-ctx.Done():
		ln.Close()
		return nil, ctx.Err()
	}
}

// Race runs Dial against hints and Accept against ln concurrently and
// returns whichever establishes a Pipe first, per spec.md §9's note
// that NAT traversal direction can't be predicted in advance: a
// caller can't know ahead of time whether it or its peer is the one
// reachable by a direct connection, so both are tried. ln may be nil
// if the caller has no listener to offer (e.g. it only holds relay
// hints for the peer).
func Race(ctx context.Context, role Role, ln net.Listener, hints []Hint, sendKey, recvKey crypto.Key) (*Pipe, ConnectionType, error) {
	type result struct {
		pipe *Pipe
		ct   ConnectionType
		err  error
	}
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := 1
	ch := make(chan result, 2)
	go func() {
		pipe, ct, err := Dial(rctx, role, hints, sendKey, recvKey)
		ch <- result{pipe, ct, err}
	}()
	if ln != nil {
		n = 2
		go func() {
			pipe, err := Accept(rctx, ln, role, sendKey, recvKey)
			ch <- result{pipe: pipe, ct: ConnectionDirect, err: err}
		}()
	}

	var lastErr error = ErrNoConnection
	for i := 0; i < n; i++ {
		r := <-ch
		if r.err == nil {
			cancel()
			return r.pipe, r.ct, nil
		}
		lastErr = r.err
	}
	return nil, 0, lastErr
}
