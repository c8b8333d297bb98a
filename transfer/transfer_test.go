package transfer

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wormhole.dev/wormhole"
)

func startTestServer(t *testing.T) (url string, cleanup func()) {
	t.Helper()
	srv := newRendezvousTestServer()
	hs := httptest.NewServer(srv)
	return "ws" + hs.URL[len("http"):], hs.Close
}

type sessionPair struct {
	send, recv *wormhole.Session
}

func establishSessions(t *testing.T, url string) sessionPair {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	codeCh := make(chan wormhole.Code, 1)
	type res struct {
		s   *wormhole.Session
		err error
	}
	done := make(chan res, 1)
	go func() {
		s, err := wormhole.Create(ctx, "test-transfer", url, "correct-horse", wormhole.AppVersion{}, codeCh)
		done <- res{s, err}
	}()

	var code wormhole.Code
	select {
	case code = <-codeCh:
	case <-time.After(5 * time.Second):
		t.Fatal("create did not allocate a nameplate in time")
	}

	recv, err := wormhole.Connect(ctx, "test-transfer", url, code, wormhole.AppVersion{})
	require.NoError(t, err)

	r := <-done
	require.NoError(t, r.err)

	return sessionPair{send: r.s, recv: recv}
}

func TestSendReceiveFileRoundTrip(t *testing.T) {
	url, cleanup := startTestServer(t)
	defer cleanup()

	srcDir := t.TempDir()
	dstDir := t.TempDir()

	content := []byte("the quick brown fox jumps over the lazy dog")
	srcPath := filepath.Join(srcDir, "greeting.txt")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	pair := establishSessions(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- Send(ctx, pair.send, srcPath, nil)
	}()

	offer, err := Receive(ctx, pair.recv, dstDir, nil)
	require.NoError(t, err)
	require.NoError(t, <-sendDone)

	require.Equal(t, KindFile, offer.Kind)
	require.Equal(t, "greeting.txt", offer.Name)
	require.Equal(t, int64(len(content)), offer.Size)

	got, err := os.ReadFile(filepath.Join(dstDir, "greeting.txt"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestReceiveRefusesOverwrite(t *testing.T) {
	url, cleanup := startTestServer(t)
	defer cleanup()

	srcDir := t.TempDir()
	dstDir := t.TempDir()

	srcPath := filepath.Join(srcDir, "dup.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("new contents"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dstDir, "dup.txt"), []byte("existing"), 0o644))

	pair := establishSessions(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- Send(ctx, pair.send, srcPath, nil)
	}()

	_, err := Receive(ctx, pair.recv, dstDir, nil)
	require.ErrorIs(t, err, ErrWouldOverwrite)
	require.Error(t, <-sendDone)

	got, err := os.ReadFile(filepath.Join(dstDir, "dup.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("existing"), got)
}

func TestSendReceiveDirectoryRoundTrip(t *testing.T) {
	url, cleanup := startTestServer(t)
	defer cleanup()

	srcDir := t.TempDir()
	dstDir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("AAAA"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "sub", "b.txt"), []byte("BBBBBB"), 0o644))

	pair := establishSessions(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- Send(ctx, pair.send, srcDir, nil)
	}()

	destRoot := filepath.Join(dstDir, filepath.Base(srcDir))
	offer, err := Receive(ctx, pair.recv, dstDir, nil)
	require.NoError(t, err)
	require.NoError(t, <-sendDone)
	require.Equal(t, KindDirectory, offer.Kind)

	got, err := os.ReadFile(filepath.Join(destRoot, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("AAAA"), got)

	got, err = os.ReadFile(filepath.Join(destRoot, "sub", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("BBBBBB"), got)
}
