// Package codec implements the wire framing shared by the transit
// record pipe, plus small hex encode/decode helpers for mailbox
// message bodies.
package codec

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// LengthPrefixSize is the size in bytes of the big-endian length
// prefix in front of every transit record.
const LengthPrefixSize = 4

// MaxRecordSize bounds a single transit record so a hostile or
// confused peer cannot make a receiver allocate unbounded memory from
// a forged length prefix.
const MaxRecordSize = 64 << 20

// WriteRecord writes length-prefixed framing around payload:
// u32_be(len(payload)) || payload, per spec.md §4.3/§6.
func WriteRecord(w io.Writer, payload []byte) error {
	var hdr [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadRecord reads one length-prefixed record written by WriteRecord.
func ReadRecord(r io.Reader) ([]byte, error) {
	var hdr [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxRecordSize {
		return nil, fmt.Errorf("codec: record length %d exceeds maximum %d", n, MaxRecordSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ErrOddHex is returned by DecodeHex when given an odd-length string,
// which cannot be a valid hex encoding of bytes.
var ErrOddHex = errors.New("codec: odd-length hex string")

// EncodeHex lower-case hex-encodes b, the format spec.md §6 uses for
// mailbox message bodies and key fingerprints on the wire.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeHex decodes a lower- or upper-case hex string.
func DecodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, ErrOddHex
	}
	return hex.DecodeString(s)
}
