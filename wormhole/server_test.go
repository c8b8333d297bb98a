package wormhole

// The in-process mailbox server used by wormhole_test.go is
// rendezvous.Server itself, the production implementation, rather
// than a second hand-rolled copy of its protocol.

import (
	"net/http"

	"wormhole.dev/rendezvous"
)

func newRendezvousTestServer() http.Handler {
	return rendezvous.NewServer("test").Handler()
}
