// Package transit implements the NAT-traversal connection and the
// framed, authenticated record pipe described in spec.md §4.3: peers
// exchange TCP hints over the already-encrypted wormhole mailbox,
// race dial attempts against all of them, then speak a short
// handshake and a length-prefixed secretbox record stream over
// whichever connection wins.
//
// saljam-webwormhole has no analog for this (its transport is a
// WebRTC DataChannel, negotiated by ICE instead of a hand-rolled TCP
// dial race), so this package is grounded on the teacher's crypto and
// framing idioms (cmd/rtcpipe/spake.go's tunnel) applied to the
// connection-establishment shape spec.md §4.3/§9 describes.
package transit

import (
	"net"
	"strconv"
)

// Ability names a transit connection method a side supports.
type Ability string

const (
	AbilityDirectTCP Ability = "direct-tcp-v1"
	AbilityRelayV1   Ability = "relay-v1"
)

// HintKind discriminates the two TransitHint variants of spec.md §3.
type HintKind string

const (
	HintDirectTCP HintKind = "direct-tcp"
	HintRelayTCP  HintKind = "relay-tcp"
)

// Hint is a single candidate endpoint. For HintDirectTCP, Hostname
// and Port are the only meaningful fields. For HintRelayTCP, Name
// identifies the relay and Hints lists the direct endpoints at which
// it can be reached; Hints entries are themselves HintDirectTCP.
type Hint struct {
	Kind     HintKind `json:"kind"`
	Hostname string   `json:"hostname,omitempty"`
	Port     int      `json:"port,omitempty"`
	Name     string   `json:"name,omitempty"`
	Hints    []Hint   `json:"hints,omitempty"`
}

// Offer is the JSON document each side sends over the encrypted
// mailbox before dialing (spec.md §4.3).
type Offer struct {
	Abilities []Ability `json:"abilities"`
	Hints     []Hint    `json:"hints"`
}

// LocalDirectHints enumerates this host's IP addresses as direct-tcp
// hints listening on port. Link-local addresses are skipped since a
// remote peer can never dial one unambiguously; loopback addresses
// are kept even though a genuinely remote peer can't reach them,
// because a same-host transfer (common in tests, and not unheard of
// in practice) needs one candidate that works. The dial race in
// transit.Dial is unaffected either way: a candidate nothing can
// reach just fails to connect and the race moves on.
func LocalDirectHints(port int) []Hint {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var hints []Hint
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLinkLocalUnicast() {
			continue
		}
		hints = append(hints, Hint{
			Kind:     HintDirectTCP,
			Hostname: ipnet.IP.String(),
			Port:     port,
		})
	}
	return hints
}

func (h Hint) addr() string {
	return net.JoinHostPort(h.Hostname, strconv.Itoa(h.Port))
}
