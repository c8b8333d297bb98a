// Package rendezvous implements the client side of the mailbox-server
// wire protocol described in spec.md §4.1 and §6: a long-lived
// WebSocket carrying JSON command/response frames, driven as an
// explicit state machine rather than free-form async code so that
// cancellation and concurrent operations can't re-enter it in an
// inconsistent state (spec.md §9, "State machine vs. free-form
// async").
//
// The transport itself follows saljam-webwormhole's use of
// nhooyr.io/websocket (wormhole/dial.go): a single *websocket.Conn,
// JSON frames, context-scoped reads and writes.
package rendezvous

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"nhooyr.io/websocket"
)

// DefaultURL is the default mailbox-server endpoint, per spec.md §6.
const DefaultURL = "wss://mailbox.mw.leastauthority.com/v1"

// KeepaliveInterval is the WebSocket idle keepalive cadence from
// spec.md §5.
const KeepaliveInterval = 30 * time.Second

// State is a rendezvous session's position in the state machine of
// spec.md §4.1.
type State int

const (
	StateStart State = iota
	StateWelcomed
	StateBound
	StateNameplateClaimed
	StateMailboxOpen
	StateReleased
	StateClosed
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateWelcomed:
		return "welcomed"
	case StateBound:
		return "bound"
	case StateNameplateClaimed:
		return "nameplate-claimed"
	case StateMailboxOpen:
		return "mailbox-open"
	case StateReleased:
		return "released"
	case StateClosed:
		return "closed"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrConnectionLost is returned by any in-flight or subsequent
// operation once the underlying WebSocket has failed.
var ErrConnectionLost = errors.New("rendezvous: connection lost")

// ServerError wraps an "error" frame's message sent by the mailbox
// server.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string { return "rendezvous: server error: " + e.Msg }

// Client is a single rendezvous session: one WebSocket connection,
// one AppID/Side pair, and the state machine of spec.md §4.1.
//
// A Client is not safe for concurrent use of the same operation twice
// in flight for the same logical step (e.g. two concurrent Claims),
// but independent operations (Add while awaiting ClaimNameplate, say)
// are fine: each is matched to its response by a distinct id.
type Client struct {
	url   string
	appID string
	side  string

	conn *websocket.Conn

	mu    sync.Mutex
	state State
	err   error

	nextID   uint64
	pending  map[string]chan Msg
	messages chan Msg

	welcome    chan Msg
	welcomeErr chan error
}

// NewClient creates a Client bound to url, appID and side. side should
// be a fresh 16-hex-char random identifier per spec.md's Side type;
// see RandSide.
func NewClient(url, appID, side string) *Client {
	return &Client{
		url:     url,
		appID:   appID,
		side:    side,
		state:   StateStart,
		pending: make(map[string]chan Msg),
		// Buffered so a slow consumer doesn't stall the read loop from
		// noticing a connection drop or ack for an unrelated op.
		messages:   make(chan Msg, 16),
		welcome:    make(chan Msg, 1),
		welcomeErr: make(chan error, 1),
	}
}

// RandSide generates a fresh 16-hex-char Side identifier (spec.md §3),
// using a v4 UUID's randomness rather than hand-rolling a rand.Reader
// call.
func RandSide() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

// Connect dials the mailbox server and sends the initial bind message,
// blocking until the server's welcome arrives (the client is then in
// StateBound) or ctx is done.
func (c *Client) Connect(ctx context.Context) (*Msg, error) {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	go c.readLoop()

	if err := c.send(ctx, Msg{
		Type:  TypeBind,
		ID:    c.id(),
		AppID: c.appID,
		Side:  c.side,
	}); err != nil {
		return nil, err
	}

	select {
	case w := <-c.welcome:
		c.setState(StateBound)
		return &w, nil
	case err := <-c.welcomeErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Allocate asks the server to pick a fresh nameplate. Only used by the
// creating side, per spec.md §4.1.
func (c *Client) Allocate(ctx context.Context) (string, error) {
	resp, err := c.roundTrip(ctx, Msg{Type: TypeAllocate})
	if err != nil {
		return "", err
	}
	return resp.Nameplate, nil
}

// ListNameplates lists nameplates currently claimed on the server, for
// interactive front-end completion (spec.md §4.1).
func (c *Client) ListNameplates(ctx context.Context) ([]string, error) {
	resp, err := c.roundTrip(ctx, Msg{Type: TypeList})
	if err != nil {
		return nil, err
	}
	out := make([]string, len(resp.Nameplates))
	for i, n := range resp.Nameplates {
		out[i] = n.ID
	}
	return out, nil
}

// ClaimNameplate binds nameplate to a mailbox id and returns it.
func (c *Client) ClaimNameplate(ctx context.Context, nameplate string) (string, error) {
	resp, err := c.roundTrip(ctx, Msg{Type: TypeClaim, Nameplate: nameplate})
	if err != nil {
		return "", err
	}
	c.setState(StateNameplateClaimed)
	return resp.Mailbox, nil
}

// ReleaseNameplate releases the claimed nameplate. Per spec.md §4.2,
// the nameplate is released as soon as the mailbox id is known; the
// mailbox itself stays open.
func (c *Client) ReleaseNameplate(ctx context.Context, nameplate string) error {
	_, err := c.roundTrip(ctx, Msg{Type: TypeRelease, Nameplate: nameplate})
	return err
}

// OpenMailbox opens mailbox, idempotently, as required before Add.
func (c *Client) OpenMailbox(ctx context.Context, mailbox string) error {
	_, err := c.roundTrip(ctx, Msg{Type: TypeOpen, Mailbox: mailbox})
	if err != nil {
		return err
	}
	c.setState(StateMailboxOpen)
	return nil
}

// Add appends a phase/body message to the open mailbox. The server
// echoes it to both sides as a "message" frame, delivered on
// MsgChan().
func (c *Client) Add(ctx context.Context, phase string, body []byte) error {
	_, err := c.roundTrip(ctx, Msg{
		Type:  TypeAdd,
		Phase: phase,
		Body:  hexEncode(body),
	})
	return err
}

// CloseMailbox closes the mailbox with the given mood and transitions
// to StateClosed on success.
func (c *Client) CloseMailbox(ctx context.Context, mood Mood) error {
	_, err := c.roundTrip(ctx, Msg{Type: TypeClose, Error: string(mood)})
	if err != nil {
		return err
	}
	c.setState(StateClosed)
	return c.conn.Close(websocket.StatusNormalClosure, "done")
}

// Ping checks liveness, per spec.md §4.1.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, Msg{Type: TypePing})
	return err
}

// MsgChan returns the channel of "message" frames delivered to this
// side: the peer's pake, version, and application-phase messages.
func (c *Client) MsgChan() <-chan Msg {
	return c.messages
}

// State returns the client's current state-machine position.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close abruptly tears down the underlying WebSocket without sending
// release/close, for use by Cancel paths that have already attempted a
// graceful close and timed out.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close(websocket.StatusNormalClosure, "cancelled")
}

func (c *Client) id() string {
	return strconv.FormatUint(atomic.AddUint64(&c.nextID, 1), 10)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// roundTrip sends msg (assigning it a fresh id if it doesn't have one)
// and waits for the server's response carrying the same id.
func (c *Client) roundTrip(ctx context.Context, msg Msg) (Msg, error) {
	if msg.ID == "" {
		msg.ID = c.id()
	}
	ch := make(chan Msg, 1)
	c.mu.Lock()
	if c.state == StateFatal || c.state == StateClosed {
		err := c.err
		c.mu.Unlock()
		if err == nil {
			err = ErrConnectionLost
		}
		return Msg{}, err
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, msg); err != nil {
		return Msg{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Msg{}, c.connErr()
		}
		if resp.Type == TypeError {
			return Msg{}, &ServerError{Msg: resp.Error}
		}
		return resp, nil
	case <-ctx.Done():
		return Msg{}, ctx.Err()
	}
}

// connErr returns the error that put the client into StateFatal, or
// ErrConnectionLost if none was recorded.
func (c *Client) connErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrConnectionLost
}

func (c *Client) send(ctx context.Context, msg Msg) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, buf)
}

// readLoop drives the state machine from inbound frames: it never
// blocks the sender, only the operations that are awaiting a matching
// response.
func (c *Client) readLoop() {
	ctx := context.Background()
	for {
		_, buf, err := c.conn.Read(ctx)
		if err != nil {
			c.fail(ErrConnectionLost)
			return
		}
		var msg Msg
		if err := json.Unmarshal(buf, &msg); err != nil {
			// Malformed frame from the server; per spec.md §9's open
			// question, we log-and-continue rather than treat this as
			// a fatal protocol error.
			log.Printf("rendezvous: malformed message from server: %v", err)
			continue
		}

		switch msg.Type {
		case TypeWelcome:
			select {
			case c.welcome <- msg:
			default:
			}
			continue
		case TypeMessage:
			// The server echoes every add to both sides of the mailbox
			// (spec.md §4.1: "server echoes to both sides"), including
			// the side that sent it; drop our own echo here rather than
			// push the filter onto every caller of MsgChan.
			if msg.Side == c.side {
				continue
			}
			select {
			case c.messages <- msg:
			default:
				// Slow consumer: drop rather than block the read loop
				// and wedge every other pending operation.
			}
			continue
		}

		if msg.ID != "" {
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if ok {
				ch <- msg
				continue
			}
		}

		if msg.Type == TypeError {
			c.fail(&ServerError{Msg: msg.Error})
			return
		}
		// Unknown or unmatched message type: per spec.md §9's open
		// question, this is logged and otherwise ignored.
		log.Printf("rendezvous: ignoring unexpected %q message from server", msg.Type)
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.state == StateFatal || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateFatal
	c.err = err
	pending := c.pending
	c.pending = make(map[string]chan Msg)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	close(c.messages)

	select {
	case c.welcomeErr <- err:
	default:
	}
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
