// Package forward implements the port-forward adapter of spec.md
// §4.4: it multiplexes any number of local TCP connections over a
// single transit.Pipe as framed {stream_id, kind, payload} records,
// so a forwarding session needs only one transit connection (and one
// dial race) no matter how many streams it carries.
//
// Grounded on the length-prefixed framing codec.WriteRecord/ReadRecord
// already provides for the transit record layer, and on the
// full-duplex io.Copy pump shape of saljam-webwormhole's
// cmd/rtcpipe/main.go, generalized from one stream per tunnel to many.
package forward

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"wormhole.dev/internal/codec"
	"wormhole.dev/transit"
)

// Kind discriminates a frame's purpose.
type Kind byte

const (
	KindOpen Kind = iota
	KindData
	KindClose
)

// frame is one multiplexed record: 1 byte kind, 4 byte big-endian
// stream id, then payload (empty for Open and Close).
type frame struct {
	StreamID uint32
	Kind     Kind
	Payload  []byte
}

func encodeFrame(f frame) []byte {
	buf := make([]byte, 5+len(f.Payload))
	buf[0] = byte(f.Kind)
	binary.BigEndian.PutUint32(buf[1:5], f.StreamID)
	copy(buf[5:], f.Payload)
	return buf
}

func decodeFrame(b []byte) (frame, error) {
	if len(b) < 5 {
		return frame{}, errors.New("forward: frame shorter than header")
	}
	return frame{
		Kind:     Kind(b[0]),
		StreamID: binary.BigEndian.Uint32(b[1:5]),
		Payload:  b[5:],
	}, nil
}

// Multiplexer carries any number of logical streams over one
// transit.Pipe. Construct with New, then either Listen (to offer
// local ports that forward to the peer) or Serve (to accept the
// peer's opened streams and dial them locally).
type Multiplexer struct {
	pipe *transit.Pipe

	writeMu sync.Mutex

	mu      sync.Mutex
	streams map[uint32]*stream
	nextID  uint32
}

type stream struct {
	conn net.Conn
	once sync.Once
}

// New wraps an established transit.Pipe as a Multiplexer.
func New(pipe *transit.Pipe) *Multiplexer {
	return &Multiplexer{pipe: pipe, streams: make(map[uint32]*stream)}
}

func (m *Multiplexer) writeFrame(f frame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return codec.WriteRecord(m.pipe, encodeFrame(f))
}

// Listen accepts local connections on ln and forwards each one as a
// new stream to the peer, which is expected to be running Serve
// against target. Listen blocks until ln is closed or ctx is done.
func (m *Multiplexer) Listen(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	// Serve's frame loop also routes the peer's Data and Close frames to
	// the local connections accepted here; the peer opens no streams of
	// its own, so no dial target is needed.
	go m.Serve(ctx, "")
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		id := m.newStreamID()
		m.addStream(id, conn)
		if err := m.writeFrame(frame{StreamID: id, Kind: KindOpen}); err != nil {
			m.closeStream(id, false)
			return err
		}
		go m.pumpLocalToPeer(id, conn)
	}
}

// Serve reads frames from the peer and services them: an Open frame
// dials target and starts relaying; Data and Close frames are routed
// to the matching local connection. Serve blocks until the underlying
// pipe errors or ctx is done.
func (m *Multiplexer) Serve(ctx context.Context, target string) error {
	errc := make(chan error, 1)
	go func() {
		for {
			raw, err := codec.ReadRecord(m.pipe)
			if err != nil {
				errc <- err
				return
			}
			f, err := decodeFrame(raw)
			if err != nil {
				errc <- err
				return
			}
			switch f.Kind {
			case KindOpen:
				conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", target)
				if err != nil {
					m.writeFrame(frame{StreamID: f.StreamID, Kind: KindClose})
					continue
				}
				m.addStream(f.StreamID, conn)
				go m.pumpLocalToPeer(f.StreamID, conn)
			case KindData:
				m.mu.Lock()
				st := m.streams[f.StreamID]
				m.mu.Unlock()
				if st == nil {
					continue
				}
				if _, err := st.conn.Write(f.Payload); err != nil {
					m.closeStream(f.StreamID, true)
				}
			case KindClose:
				m.closeStream(f.StreamID, false)
			default:
				errc <- fmt.Errorf("forward: unknown frame kind %d", f.Kind)
				return
			}
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Multiplexer) newStreamID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

func (m *Multiplexer) addStream(id uint32, conn net.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[id] = &stream{conn: conn}
}

func (m *Multiplexer) closeStream(id uint32, notifyPeer bool) {
	m.mu.Lock()
	st, ok := m.streams[id]
	if ok {
		delete(m.streams, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	st.once.Do(func() { st.conn.Close() })
	if notifyPeer {
		m.writeFrame(frame{StreamID: id, Kind: KindClose})
	}
}

// pumpLocalToPeer relays bytes read from conn to the peer as Data
// frames until conn reaches EOF or errors, then sends Close.
func (m *Multiplexer) pumpLocalToPeer(id uint32, conn net.Conn) {
	buf := make([]byte, 32<<10)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			if werr := m.writeFrame(frame{StreamID: id, Kind: KindData, Payload: payload}); werr != nil {
				m.closeStream(id, false)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				m.closeStream(id, true)
				return
			}
			m.closeStream(id, true)
			return
		}
	}
}
