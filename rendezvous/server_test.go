package rendezvous

// A minimal in-process mailbox server used only to exercise Client
// against real WebSocket framing in tests, grounded on
// saljam-webwormhole/cmd/ww/server.go's relay handler (websocket.Accept,
// one goroutine per connection, a map of pending rendezvous state
// guarded by a mutex). Unlike the teacher's slot relay this speaks the
// full bind/allocate/claim/open/add/release/close/ping protocol of
// message.go, since that's what Client drives.

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"nhooyr.io/websocket"
)

type testMailbox struct {
	mu      sync.Mutex
	sides   map[string]*websocket.Conn
	nextMsg int
}

type testServer struct {
	mu         sync.Mutex
	nameplates map[string]string // nameplate -> mailbox id
	mailboxes  map[string]*testMailbox
	nextNP     int
}

func newTestServer() *testServer {
	return &testServer{
		nameplates: make(map[string]string),
		mailboxes:  make(map[string]*testMailbox),
	}
}

func (s *testServer) httptest() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(s.handle))
}

func (s *testServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	ctx := context.Background()

	var side, mailboxID string

	writeJSON := func(m Msg) {
		buf, err := marshalMsg(m)
		if err != nil {
			return
		}
		conn.Write(ctx, websocket.MessageText, buf)
	}

	_, buf, err := conn.Read(ctx)
	if err != nil {
		return
	}
	bind, err := unmarshalMsg(buf)
	if err != nil || bind.Type != TypeBind {
		conn.Close(websocket.StatusProtocolError, "expected bind")
		return
	}
	side = bind.Side
	writeJSON(Msg{Type: TypeWelcome, ID: bind.ID, Welcome: &Welcome{MOTD: "test server"}})

	defer func() {
		if mailboxID != "" {
			s.mu.Lock()
			if mb, ok := s.mailboxes[mailboxID]; ok {
				mb.mu.Lock()
				delete(mb.sides, side)
				mb.mu.Unlock()
			}
			s.mu.Unlock()
		}
		conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		_, buf, err := conn.Read(ctx)
		if err != nil {
			return
		}
		msg, err := unmarshalMsg(buf)
		if err != nil {
			continue
		}

		switch msg.Type {
		case TypeAllocate:
			s.mu.Lock()
			s.nextNP++
			np := strconv.Itoa(s.nextNP)
			mb := np + "-mailbox"
			s.nameplates[np] = mb
			s.mailboxes[mb] = &testMailbox{sides: make(map[string]*websocket.Conn)}
			s.mu.Unlock()
			writeJSON(Msg{Type: TypeAllocated, ID: msg.ID, Nameplate: np})

		case TypeList:
			s.mu.Lock()
			var list []NameplateInfo
			for np := range s.nameplates {
				list = append(list, NameplateInfo{ID: np})
			}
			s.mu.Unlock()
			writeJSON(Msg{Type: TypeNameplates, ID: msg.ID, Nameplates: list})

		case TypeClaim:
			s.mu.Lock()
			mb, ok := s.nameplates[msg.Nameplate]
			if !ok {
				mb = msg.Nameplate + "-mailbox"
				s.nameplates[msg.Nameplate] = mb
			}
			if _, ok := s.mailboxes[mb]; !ok {
				s.mailboxes[mb] = &testMailbox{sides: make(map[string]*websocket.Conn)}
			}
			s.mu.Unlock()
			writeJSON(Msg{Type: TypeClaimed, ID: msg.ID, Mailbox: mb})

		case TypeRelease:
			writeJSON(Msg{Type: TypeReleased, ID: msg.ID})

		case TypeOpen:
			mailboxID = msg.Mailbox
			s.mu.Lock()
			mb, ok := s.mailboxes[mailboxID]
			if !ok {
				mb = &testMailbox{sides: make(map[string]*websocket.Conn)}
				s.mailboxes[mailboxID] = mb
			}
			s.mu.Unlock()
			mb.mu.Lock()
			mb.sides[side] = conn
			mb.mu.Unlock()
			writeJSON(Msg{Type: TypeAck, ID: msg.ID})

		case TypeAdd:
			s.mu.Lock()
			mb := s.mailboxes[mailboxID]
			s.mu.Unlock()
			if mb == nil {
				continue
			}
			out := Msg{Type: TypeMessage, Side: side, Phase: msg.Phase, Body: msg.Body}
			outBuf, _ := marshalMsg(out)
			mb.mu.Lock()
			for _, peer := range mb.sides {
				peer.Write(ctx, websocket.MessageText, outBuf)
			}
			mb.mu.Unlock()
			writeJSON(Msg{Type: TypeAck, ID: msg.ID})

		case TypeClose:
			writeJSON(Msg{Type: TypeClosed, ID: msg.ID})

		case TypePing:
			writeJSON(Msg{Type: TypePong, ID: msg.ID})
		}
	}
}
