package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"wormhole.dev/rendezvous"
	"wormhole.dev/transfer"
)

func send(args ...string) {
	set := flag.NewFlagSet(args[0], flag.ExitOnError)
	set.Usage = func() {
		fmt.Fprintf(set.Output(), "send a file or directory\n\n")
		fmt.Fprintf(set.Output(), "usage: %s %s [flags] <path>\n\n", os.Args[0], args[0])
		fmt.Fprintf(set.Output(), "flags:\n")
		set.PrintDefaults()
	}
	words := set.Int("words", 2, "number of words in the generated password")
	code := set.String("code", "", "use this code instead of generating one")
	verify := set.Bool("verify", false, "ask for manual verifier confirmation before sending")
	set.Parse(args[1:])

	if set.NArg() != 1 {
		set.Usage()
		os.Exit(2)
	}
	path := set.Arg(0)

	ctx, cancel := dialContext()
	defer cancel()

	s, err := open(ctx, *code, *words)
	if err != nil {
		fatalf("could not establish wormhole session: %v", err)
	}
	defer s.Close(ctx, rendezvous.MoodHappy)

	if err := transfer.Send(ctx, s, path, verifierHook(*verify)); err != nil {
		fatalf("send failed: %v", err)
	}
	fmt.Fprintf(set.Output(), "sent %s\n", path)
}

// verifierHook asks the user at the terminal to confirm the session
// verifier before the bulk transfer begins, if verify is set
// (spec.md §4.2's verifier, surfaced as SPEC_FULL.md's verifier-mismatch
// abort feature).
func verifierHook(verify bool) transfer.VerifierOk {
	if !verify {
		return nil
	}
	return func(hexVerifier string) bool {
		fmt.Fprintf(os.Stderr, "verifier: %s\nconfirm out of band, then press enter (n to abort): ", hexVerifier)
		r := bufio.NewReader(os.Stdin)
		line, _ := r.ReadString('\n')
		return !strings.HasPrefix(strings.TrimSpace(strings.ToLower(line)), "n")
	}
}
