package transit

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"wormhole.dev/internal/codec"
	"wormhole.dev/internal/crypto"
)

// Pipe is an established transit connection: a net.Conn plus the two
// directional subkeys and nonce counters of spec.md §4.3's record
// layer. A Pipe is safe for one concurrent reader and one concurrent
// writer (the usual full-duplex stream contract), grounded on the
// counter-nonce secretbox tunnel in
// saljam-webwormhole/cmd/rtcpipe/spake.go, adapted from WebRTC
// message framing to the explicit u32_be length prefix codec.Record*
// uses, and from a little-endian 8-byte nonce to the big-endian,
// zero-padded 24-byte counter nonce spec.md §4.3 specifies.
type Pipe struct {
	conn net.Conn

	sendKey     crypto.Key
	recvKey     crypto.Key
	sendCounter uint64
	recvCounter uint64

	wmu sync.Mutex
	rmu sync.Mutex

	pending []byte // leftover plaintext from a record not fully consumed by Read
}

// NewPipe wraps conn as a record pipe. sendKey seals outgoing
// records; recvKey opens incoming ones. Callers get these from
// Session.TransitKeys, picking sendKey/recvKey according to which
// side of transit_sender/transit_receiver they are.
func NewPipe(conn net.Conn, sendKey, recvKey crypto.Key) *Pipe {
	return &Pipe{conn: conn, sendKey: sendKey, recvKey: recvKey}
}

// Write seals p as one or more records. Large writes are chunked so
// no single secretbox payload is unreasonably large; chunk boundaries
// are invisible to Read, which reassembles a continuous byte stream.
func (p *Pipe) Write(b []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	const chunkSize = 16 << 10
	written := 0
	for len(b) > 0 {
		n := len(b)
		if n > chunkSize {
			n = chunkSize
		}
		nonce := crypto.CounterNonce(p.sendCounter)
		p.sendCounter++
		ciphertext := crypto.SealWithNonce(p.sendKey, nonce, b[:n])
		record := append(nonce[:], ciphertext...)
		if err := codec.WriteRecord(p.conn, record); err != nil {
			return written, err
		}
		written += n
		b = b[n:]
	}
	return written, nil
}

// Read returns decrypted record bytes, buffering any remainder of a
// record that doesn't fit in p.
func (p *Pipe) Read(b []byte) (int, error) {
	p.rmu.Lock()
	defer p.rmu.Unlock()

	if len(p.pending) == 0 {
		plain, err := p.readRecord()
		if err != nil {
			return 0, err
		}
		p.pending = plain
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *Pipe) readRecord() ([]byte, error) {
	record, err := codec.ReadRecord(p.conn)
	if err != nil {
		return nil, err
	}
	if len(record) < crypto.NonceSize {
		return nil, fmt.Errorf("transit: record shorter than a nonce")
	}
	var nonce [crypto.NonceSize]byte
	copy(nonce[:], record[:crypto.NonceSize])
	ciphertext := record[crypto.NonceSize:]

	got := binary.BigEndian.Uint64(nonce[crypto.NonceSize-8:])
	if got != p.recvCounter {
		return nil, ErrNonceRegression
	}

	plain, err := crypto.OpenWithNonce(p.recvKey, nonce, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("transit: %w", err)
	}
	p.recvCounter++
	return plain, nil
}

// Close closes the underlying connection.
func (p *Pipe) Close() error {
	return p.conn.Close()
}

var _ io.ReadWriteCloser = (*Pipe)(nil)
