package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"

	"wormhole.dev/forward"
	"wormhole.dev/rendezvous"
	"wormhole.dev/transit"
)

// forwardOffer is exchanged once over the wormhole session before the
// transit connection, the same shape as transfer.Offer but for a port
// rather than a file (spec.md §4.4's forward adapter has no offer/
// answer step of its own, so this reuses the hint-exchange idiom).
type forwardOffer struct {
	Hints []transit.Hint `json:"hints"`
}

// forwardCmd implements the "forward" subcommand: one side exposes a
// local port (-bind) that tunnels each connection to the other side's
// target address (-target), over a single transit connection carrying
// the forward package's multiplexed streams.
func forwardCmd(args ...string) {
	set := flag.NewFlagSet(args[0], flag.ExitOnError)
	set.Usage = func() {
		fmt.Fprintf(set.Output(), "forward a TCP port to a peer\n\n")
		fmt.Fprintf(set.Output(), "usage: %s %s -bind <addr> [code]       (expose a local port)\n", os.Args[0], args[0])
		fmt.Fprintf(set.Output(), "       %s %s -target <addr> <code>    (dial <addr> for each forwarded connection)\n\n", os.Args[0], args[0])
		fmt.Fprintf(set.Output(), "flags:\n")
		set.PrintDefaults()
	}
	bind := set.String("bind", "", "local address to listen on and forward from")
	target := set.String("target", "", "address to dial for each connection the peer forwards")
	words := set.Int("words", 2, "number of words in the generated password")
	set.Parse(args[1:])

	if (*bind == "") == (*target == "") {
		fmt.Fprintln(set.Output(), "exactly one of -bind or -target is required")
		set.Usage()
		os.Exit(2)
	}
	if set.NArg() > 1 {
		set.Usage()
		os.Exit(2)
	}

	ctx, cancel := dialContext()
	defer cancel()

	s, err := open(ctx, set.Arg(0), *words)
	if err != nil {
		fatalf("could not establish wormhole session: %v", err)
	}
	defer s.Close(ctx, rendezvous.MoodHappy)

	sendKey, recvKey := s.TransitKeys()

	if *bind != "" {
		ln, err := transit.Listen()
		if err != nil {
			fatalf("could not open transit listener: %v", err)
		}
		defer ln.Close()
		port := ln.Addr().(*net.TCPAddr).Port

		offerBody, err := json.Marshal(forwardOffer{Hints: transit.LocalDirectHints(port)})
		if err != nil {
			fatalf("could not marshal offer: %v", err)
		}
		if err := s.Send(ctx, offerBody); err != nil {
			fatalf("could not send offer: %v", err)
		}

		pipe, _, err := transit.Race(ctx, transit.RoleSender, ln, nil, sendKey, recvKey)
		if err != nil {
			fatalf("could not establish transit connection: %v", err)
		}
		defer pipe.Close()

		localLn, err := net.Listen("tcp", *bind)
		if err != nil {
			fatalf("could not listen on %s: %v", *bind, err)
		}
		defer localLn.Close()

		fmt.Fprintf(set.Output(), "forwarding %s to the peer\n", *bind)
		if err := forward.New(pipe).Listen(ctx, localLn); err != nil {
			fatalf("forward: %v", err)
		}
		return
	}

	offerBody, err := s.Receive(ctx)
	if err != nil {
		fatalf("could not receive offer: %v", err)
	}
	var offer forwardOffer
	if err := json.Unmarshal(offerBody, &offer); err != nil {
		fatalf("could not decode offer: %v", err)
	}

	pipe, _, err := transit.Race(ctx, transit.RoleReceiver, nil, offer.Hints, sendKey, recvKey)
	if err != nil {
		fatalf("could not establish transit connection: %v", err)
	}
	defer pipe.Close()

	fmt.Fprintf(set.Output(), "forwarding peer connections to %s\n", *target)
	if err := forward.New(pipe).Serve(ctx, *target); err != nil {
		fatalf("forward: %v", err)
	}
}
