package forward

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wormhole.dev/internal/crypto"
	"wormhole.dev/transit"
)

func pipePair(t *testing.T) (client, server *transit.Pipe) {
	t.Helper()
	mk := crypto.DeriveMasterKey([]byte("forward test spake output"))
	a := crypto.DerivePurposeKey(mk, "test-app", crypto.Purpose("transit_sender"))
	b := crypto.DerivePurposeKey(mk, "test-app", crypto.Purpose("transit_receiver"))

	c1, c2 := net.Pipe()
	return transit.NewPipe(c1, a, b), transit.NewPipe(c2, b, a)
}

// echoServer accepts any number of connections and echoes every byte
// back on each, closing when its peer closes.
func echoServer(t *testing.T) (addr string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestForwardRoundTrip(t *testing.T) {
	target := echoServer(t)

	clientPipe, serverPipe := pipePair(t)
	clientMux := New(clientPipe)
	serverMux := New(serverPipe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go serverMux.Serve(ctx, target)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go clientMux.Listen(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	msg := []byte("hello through the tunnel")
	_, err = conn.Write(msg)
	require.NoError(t, err)

	buf := make([]byte, len(msg))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, msg, buf)
}

func TestForwardMultipleStreams(t *testing.T) {
	target := echoServer(t)

	clientPipe, serverPipe := pipePair(t)
	clientMux := New(clientPipe)
	serverMux := New(serverPipe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go serverMux.Serve(ctx, target)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go clientMux.Listen(ctx, ln)

	const n = 3
	conns := make([]net.Conn, n)
	for i := range conns {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
		conns[i] = conn
	}

	for i, conn := range conns {
		msg := []byte{'a' + byte(i), 'a' + byte(i), 'a' + byte(i)}
		_, err := conn.Write(msg)
		require.NoError(t, err)
		buf := make([]byte, len(msg))
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, err = io.ReadFull(conn, buf)
		require.NoError(t, err)
		require.Equal(t, msg, buf)
	}
}
