package rendezvous

// Server is the production mailbox server: the bind/allocate/list/
// claim/release/open/add/close/ping protocol of message.go, wired up
// as an http.Handler. Grounded on saljam-webwormhole/cmd/ww/server.go's
// relay handler (one goroutine per websocket.Accept'd connection, a
// mutex-guarded map of rendezvous state) and on this package's own
// server_test.go, which exercises the same state machine against
// Client — this file is that logic promoted from test scaffolding to
// a server any cmd/wormhole-mailbox-server binary can mount.

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// MailboxTimeout bounds how long an open mailbox may sit without
// being closed, mirroring cmd/ww/server.go's slotTimeout for the same
// reason: an abandoned connection shouldn't pin server resources
// forever.
const MailboxTimeout = 30 * time.Minute

type mailbox struct {
	mu    sync.Mutex
	sides map[string]*websocket.Conn
	// messages holds every "message" frame added so far; a side that
	// opens the mailbox later is sent them all on open.
	messages [][]byte
}

// Server holds the nameplate and mailbox tables for one rendezvous
// server process. The zero value is not usable; construct with
// NewServer.
type Server struct {
	motd string

	mu         sync.Mutex
	nameplates map[string]string // nameplate -> mailbox id
	mailboxes  map[string]*mailbox
	nextNP     int
}

// NewServer constructs an empty Server. motd is sent to every client
// as the welcome message's MOTD field (spec.md §6).
func NewServer(motd string) *Server {
	return &Server{
		motd:       motd,
		nameplates: make(map[string]string),
		mailboxes:  make(map[string]*mailbox),
	}
}

// Handler returns the http.Handler that speaks the rendezvous
// protocol over an upgraded websocket connection at its root path.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	metricConnections.Inc()
	defer metricConnections.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), MailboxTimeout)
	defer cancel()

	writeJSON := func(m Msg) {
		buf, err := json.Marshal(m)
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
	side := bind.Side
	writeJSON(Msg{Type: TypeWelcome, ID: bind.ID, Welcome: &Welcome{MOTD: s.motd}})

	var mailboxID string
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
			// Per SPEC_FULL.md's Open Question decision, an unrecognized
			// or malformed message is logged and the connection stays
			// open rather than being treated as fatal.
			log.Printf("rendezvous: malformed message from %s: %v", side, err)
			continue
		}

		switch msg.Type {
		case TypeAllocate:
			s.mu.Lock()
			s.nextNP++
			np := strconv.Itoa(s.nextNP)
			mb := np + "-mailbox"
			s.nameplates[np] = mb
			s.mailboxes[mb] = &mailbox{sides: make(map[string]*websocket.Conn)}
			metricNameplates.Set(float64(len(s.nameplates)))
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
				s.mailboxes[mb] = &mailbox{sides: make(map[string]*websocket.Conn)}
			}
			metricNameplates.Set(float64(len(s.nameplates)))
			s.mu.Unlock()
			writeJSON(Msg{Type: TypeClaimed, ID: msg.ID, Mailbox: mb})

		case TypeRelease:
			s.mu.Lock()
			delete(s.nameplates, msg.Nameplate)
			metricNameplates.Set(float64(len(s.nameplates)))
			s.mu.Unlock()
			writeJSON(Msg{Type: TypeReleased, ID: msg.ID})

		case TypeOpen:
			mailboxID = msg.Mailbox
			s.mu.Lock()
			mb, ok := s.mailboxes[mailboxID]
			if !ok {
				mb = &mailbox{sides: make(map[string]*websocket.Conn)}
				s.mailboxes[mailboxID] = mb
			}
			s.mu.Unlock()
			mb.mu.Lock()
			mb.sides[side] = conn
			for _, m := range mb.messages {
				conn.Write(ctx, websocket.MessageText, m)
			}
			mb.mu.Unlock()
			writeJSON(Msg{Type: TypeAck, ID: msg.ID})

		case TypeAdd:
			s.mu.Lock()
			mb := s.mailboxes[mailboxID]
			s.mu.Unlock()
			if mb == nil {
				writeJSON(Msg{Type: TypeError, ID: msg.ID, Error: "no open mailbox"})
				continue
			}
			out := Msg{Type: TypeMessage, Side: side, Phase: msg.Phase, Body: msg.Body}
			outBuf, err := json.Marshal(out)
			if err != nil {
				continue
			}
			mb.mu.Lock()
			mb.messages = append(mb.messages, outBuf)
			for _, peer := range mb.sides {
				peer.Write(ctx, websocket.MessageText, outBuf)
			}
			mb.mu.Unlock()
			metricMessages.Inc()
			writeJSON(Msg{Type: TypeAck, ID: msg.ID})

		case TypeClose:
			s.mu.Lock()
			if mailboxID != "" {
				if mb, ok := s.mailboxes[mailboxID]; ok {
					mb.mu.Lock()
					delete(mb.sides, side)
					empty := len(mb.sides) == 0
					mb.mu.Unlock()
					if empty {
						delete(s.mailboxes, mailboxID)
					}
				}
			}
			s.mu.Unlock()
			writeJSON(Msg{Type: TypeClosed, ID: msg.ID})

		case TypePing:
			writeJSON(Msg{Type: TypePong, ID: msg.ID})

		default:
			log.Printf("rendezvous: unknown message type %q from %s", msg.Type, side)
		}
	}
}

func marshalMsg(m Msg) ([]byte, error) { return json.Marshal(m) }

func unmarshalMsg(b []byte) (Msg, error) {
	var m Msg
	err := json.Unmarshal(b, &m)
	return m, err
}
