package main

import (
	"context"
	"encoding/hex"

	"wormhole.dev/wormhole"
)

// open establishes a Session: Create a fresh nameplate/password if
// code is empty (printing it for the user to relay out of band), or
// Connect to an already-known code otherwise. Mirrors cmd/ww/main.go's
// newConn, minus the WebRTC ICE plumbing it no longer needs.
func open(ctx context.Context, code string, numWords int) (*wormhole.Session, error) {
	var (
		s   *wormhole.Session
		err error
	)
	if code != "" {
		c, perr := wormhole.ParseCode(code)
		if perr != nil {
			return nil, perr
		}
		s, err = wormhole.Connect(ctx, appID, *rendezvousURL, c, nil)
	} else {
		password := newPassword(numWords)
		codeCh := make(chan wormhole.Code, 1)
		go func() {
			c := <-codeCh
			printCode(c)
		}()
		s, err = wormhole.Create(ctx, appID, *rendezvousURL, password, nil, codeCh)
	}
	if err != nil {
		return nil, err
	}
	v := s.Verifier()
	vlogf("session established, side=%s verifier=%s", s.Side(), hex.EncodeToString(v[:]))
	return s, nil
}
