// Command wormhole creates ephemeral, end-to-end encrypted pipes
// between computers identified by a short one-time code.
//
// Grounded on saljam-webwormhole's cmd/ww/main.go: the same
// flag.FlagSet-per-subcommand dispatch table and fatalf-style error
// exit, but newConn's WebRTC dial is replaced by wormhole.Create/
// Connect plus transit, and the "pipe" subcommand is replaced by
// "forward" (many streams, not one).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"rsc.io/qr"

	"wormhole.dev/wordlist"
	"wormhole.dev/wormhole"
)

const appID = "wormhole.dev/cli"

var subcmds = map[string]func(args ...string){
	"send":     send,
	"receive":  receive,
	"send-many": sendMany,
	"forward":  forwardCmd,
	"version":  version,
}

var (
	rendezvousURL = flag.String("rendezvous", "ws://localhost:4000/v1", "rendezvous (mailbox) server to use")
	timeout       = flag.Duration("timeout", 0, "give up waiting for a peer after this long (0 = wait forever)")
	verbose       = flag.Bool("v", false, "verbose logging")
)

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "wormhole moves files and data between computers over an encrypted, NAT-traversing pipe.\n\n")
	fmt.Fprintf(w, "usage:\n\n")
	fmt.Fprintf(w, "  %s [flags] <command> [arguments]\n\n", os.Args[0])
	fmt.Fprintf(w, "commands:\n")
	for _, c := range []string{"send", "receive", "send-many", "forward", "version"} {
		fmt.Fprintf(w, "  %s\n", c)
	}
	fmt.Fprintf(w, "\nflags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd, ok := subcmds[flag.Arg(0)]
	if !ok {
		flag.Usage()
		os.Exit(2)
	}
	cmd(flag.Args()...)
}

func fatalf(format string, v ...interface{}) {
	fmt.Fprintf(flag.CommandLine.Output(), format+"\n", v...)
	os.Exit(1)
}

func version(args ...string) {
	fmt.Println("wormhole.dev cli")
}

// dialContext returns a context bound by -timeout, and its cancel
// func, per SPEC_FULL.md's Open Question decision: no-peer timeouts
// default to infinite, with a CLI flag for hosts that want one.
func dialContext() (context.Context, context.CancelFunc) {
	if *timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), *timeout)
}

// newPassword returns a freshly generated nameplate-less password, ready
// to be paired with a nameplate once Create allocates one.
func newPassword(numWords int) string {
	pass, err := wordlist.GeneratePassword(numWords)
	if err != nil {
		fatalf("could not generate password: %v", err)
	}
	return pass
}

func printCode(code wormhole.Code) {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "wormhole code is: %s\n", code.String())
	u := wormhole.URI(code, *rendezvousURL)
	fmt.Fprintf(out, "%s\n", u)
	printQR(out, u)
}

func printQR(out io.Writer, data string) {
	qrcode, err := qr.Encode(data, qr.L)
	if err != nil {
		return
	}
	for y := 0; y < qrcode.Size; y += 2 {
		for x := 0; x < qrcode.Size; x++ {
			switch {
			case qrcode.Black(x, y) && qrcode.Black(x, y+1):
				fmt.Fprintf(out, " ")
			case qrcode.Black(x, y):
				fmt.Fprintf(out, "▄")
			case qrcode.Black(x, y+1):
				fmt.Fprintf(out, "▀")
			default:
				fmt.Fprintf(out, "█")
			}
		}
		fmt.Fprintf(out, "\n")
	}
}

// vlogf logs only when -v is set.
func vlogf(format string, v ...interface{}) {
	if *verbose {
		fmt.Fprintf(os.Stderr, format+"\n", v...)
	}
}

