package rendezvous

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestClientFullHandshake(t *testing.T) {
	srv := newTestServer()
	hs := srv.httptest()
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := NewClient(wsURL(hs.URL), "test-app", RandSide())
	welcomeA, err := a.Connect(ctx)
	require.NoError(t, err)
	require.Equal(t, "test server", welcomeA.Welcome.MOTD)
	require.Equal(t, StateBound, a.State())

	nameplate, err := a.Allocate(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, nameplate)

	mailbox, err := a.ClaimNameplate(ctx, nameplate)
	require.NoError(t, err)
	require.Equal(t, StateNameplateClaimed, a.State())

	require.NoError(t, a.ReleaseNameplate(ctx, nameplate))
	require.NoError(t, a.OpenMailbox(ctx, mailbox))
	require.Equal(t, StateMailboxOpen, a.State())

	b := NewClient(wsURL(hs.URL), "test-app", RandSide())
	_, err = b.Connect(ctx)
	require.NoError(t, err)
	bMailbox, err := b.ClaimNameplate(ctx, nameplate)
	require.NoError(t, err)
	require.Equal(t, mailbox, bMailbox)
	require.NoError(t, b.OpenMailbox(ctx, bMailbox))

	require.NoError(t, a.Add(ctx, "pake", []byte("deadbeef")))

	select {
	case m := <-b.MsgChan():
		require.Equal(t, "pake", m.Phase)
		require.Equal(t, "deadbeef", m.Body)
	case <-ctx.Done():
		t.Fatal("timed out waiting for peer message")
	}

	require.NoError(t, a.Ping(ctx))
	require.NoError(t, a.CloseMailbox(ctx, MoodHappy))
	require.Equal(t, StateClosed, a.State())
}

func TestClientConnectionLost(t *testing.T) {
	srv := newTestServer()
	hs := srv.httptest()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewClient(wsURL(hs.URL), "test-app", RandSide())
	_, err := c.Connect(ctx)
	require.NoError(t, err)

	hs.Close() // server goes away mid-session

	_, err = c.Allocate(ctx)
	require.Error(t, err)
}
