package main

import (
	"flag"
	"fmt"
	"os"

	"wormhole.dev/rendezvous"
	"wormhole.dev/transfer"
	"wormhole.dev/wormhole"
)

// sendMany implements SPEC_FULL.md's supplemented send-many feature:
// sequential re-use of one offer across any number of receivers, each
// getting its own mailbox and nameplate (spec.md's Non-goals describe
// the feature this way, not as a single shared mailbox).
func sendMany(args ...string) {
	set := flag.NewFlagSet(args[0], flag.ExitOnError)
	set.Usage = func() {
		fmt.Fprintf(set.Output(), "send a file to any number of receivers, one after another\n\n")
		fmt.Fprintf(set.Output(), "usage: %s %s [flags] <path>\n\n", os.Args[0], args[0])
		fmt.Fprintf(set.Output(), "flags:\n")
		set.PrintDefaults()
	}
	words := set.Int("words", 2, "number of words in the generated password")
	set.Parse(args[1:])

	if set.NArg() != 1 {
		set.Usage()
		os.Exit(2)
	}
	path := set.Arg(0)

	for round := 1; ; round++ {
		fmt.Fprintf(set.Output(), "waiting for receiver #%d (ctrl-c to stop)...\n", round)

		ctx, cancel := dialContext()
		s, err := open(ctx, "", *words)
		if err != nil {
			cancel()
			fatalf("could not establish wormhole session: %v", err)
		}

		err = transfer.Send(ctx, s, path, nil)
		s.Close(ctx, closeMood(err))
		cancel()
		if err != nil {
			fmt.Fprintf(set.Output(), "round #%d failed: %v\n", round, err)
			continue
		}
		fmt.Fprintf(set.Output(), "round #%d: sent %s\n", round, path)
	}
}

func closeMood(err error) rendezvous.Mood {
	if err == nil {
		return rendezvous.MoodHappy
	}
	if err == wormhole.ErrScared {
		return rendezvous.MoodScared
	}
	return rendezvous.MoodErrory
}
