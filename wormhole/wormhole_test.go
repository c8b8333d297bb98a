package wormhole

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startTestServer spins up the in-process mailbox server defined in
// server_test.go and returns its WebSocket URL.
func startTestServer(t *testing.T) (url string, cleanup func()) {
	t.Helper()
	srv := newRendezvousTestServer()
	hs := httptest.NewServer(srv)
	return "ws" + hs.URL[len("http"):], hs.Close
}

type createResult struct {
	s   *Session
	err error
}

func asyncCreate(ctx context.Context, appID, url, password string, version AppVersion, codeCh chan<- Code) <-chan createResult {
	done := make(chan createResult, 1)
	go func() {
		s, err := Create(ctx, appID, url, password, version, codeCh)
		done <- createResult{s, err}
	}()
	return done
}

func TestCreateConnectSharedMasterKey(t *testing.T) {
	url, cleanup := startTestServer(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	codeCh := make(chan Code, 1)
	createDone := asyncCreate(ctx, "test-app", url, "purple-sausalito", AppVersion{"mode": "send"}, codeCh)

	var code Code
	select {
	case code = <-codeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("create did not allocate a nameplate in time")
	}

	recv, err := Connect(ctx, "test-app", url, code, AppVersion{"mode": "receive"})
	require.NoError(t, err)

	r := <-createDone
	require.NoError(t, r.err)
	send := r.s

	require.Equal(t, send.Verifier(), recv.Verifier())
	require.Equal(t, AppVersion{"mode": "receive"}, send.PeerVersion)
	require.Equal(t, AppVersion{"mode": "send"}, recv.PeerVersion)
}

func TestWrongCodeSurfacesAsWrongCode(t *testing.T) {
	url, cleanup := startTestServer(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	codeCh := make(chan Code, 1)
	createDone := asyncCreate(ctx, "test-app", url, "purple-sausalito", AppVersion{}, codeCh)

	var code Code
	select {
	case code = <-codeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("create did not allocate a nameplate in time")
	}
	wrongCode := Code{Nameplate: code.Nameplate, Password: "purple-wrong"}

	_, err := Connect(ctx, "test-app", url, wrongCode, AppVersion{})
	require.ErrorIs(t, err, ErrWrongCode)

	r := <-createDone
	require.ErrorIs(t, r.err, ErrWrongCode)
}

func TestSendReceivePhaseOrdering(t *testing.T) {
	url, cleanup := startTestServer(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	codeCh := make(chan Code, 1)
	createDone := asyncCreate(ctx, "test-app", url, "purple-sausalito", AppVersion{}, codeCh)

	var code Code
	select {
	case code = <-codeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("create did not allocate a nameplate in time")
	}

	recv, err := Connect(ctx, "test-app", url, code, AppVersion{})
	require.NoError(t, err)
	r := <-createDone
	require.NoError(t, r.err)
	send := r.s

	require.NoError(t, send.Send(ctx, []byte("offer")))
	require.NoError(t, send.Send(ctx, []byte("body")))

	got1, err := recv.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "offer", string(got1))

	got2, err := recv.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "body", string(got2))
}
