package main

import (
	"flag"
	"fmt"
	"os"

	"wormhole.dev/rendezvous"
	"wormhole.dev/transfer"
)

func receive(args ...string) {
	set := flag.NewFlagSet(args[0], flag.ExitOnError)
	set.Usage = func() {
		fmt.Fprintf(set.Output(), "receive a file or directory\n\n")
		fmt.Fprintf(set.Output(), "usage: %s %s [flags] <code>\n\n", os.Args[0], args[0])
		fmt.Fprintf(set.Output(), "flags:\n")
		set.PrintDefaults()
	}
	dir := set.String("dir", ".", "directory to write the received file(s) into")
	verify := set.Bool("verify", false, "ask for manual verifier confirmation before receiving")
	set.Parse(args[1:])

	if set.NArg() != 1 {
		set.Usage()
		os.Exit(2)
	}

	ctx, cancel := dialContext()
	defer cancel()

	s, err := open(ctx, set.Arg(0), 0)
	if err != nil {
		fatalf("could not establish wormhole session: %v", err)
	}
	defer s.Close(ctx, rendezvous.MoodHappy)

	offer, err := transfer.Receive(ctx, s, *dir, verifierHook(*verify))
	if err != nil {
		fatalf("receive failed: %v", err)
	}
	fmt.Fprintf(set.Output(), "received %s (%s, %d bytes)\n", offer.Name, offer.Kind, offer.Size)
}
