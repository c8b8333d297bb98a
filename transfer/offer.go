// Package transfer implements the file-transfer adapter of spec.md
// §4.4: an offer/answer choreography carried as encrypted mailbox
// phases over a wormhole.Session, followed by a bulk transfer over a
// transit.Pipe.
//
// saljam-webwormhole's equivalent (cmd/ww/file.go) sends one small
// JSON header per file directly down the WebRTC DataChannel with no
// accept/reject step; this package keeps that header shape but moves
// it in front of the transit connection as a proper offer/answer pair
// so a receiver can refuse before any bytes move, per spec.md §4.4.
package transfer

import (
	"encoding/json"

	"wormhole.dev/transit"
)

// FileKind discriminates a single file from a directory offer.
type FileKind string

const (
	KindFile      FileKind = "file"
	KindDirectory FileKind = "directory"
)

// FileOffer describes the bulk data a sender wants to send. For a
// directory, Size is the sum of the member files' sizes rather than
// the exact byte count of the tar stream that follows (tar headers
// add overhead there's no way to know in advance), so it's informative
// only, not a receiver-side integrity check.
type FileOffer struct {
	Kind FileKind `json:"kind"`
	Name string   `json:"name"`
	Size int64    `json:"size"`
}

// Offer is the first phase a sender transmits: the file metadata plus
// the transit hints the receiver needs to dial in (spec.md §4.3's
// hint exchange, reused here rather than repeated as a separate
// mailbox phase).
type Offer struct {
	File  FileOffer    `json:"file"`
	Hints []transit.Hint `json:"hints"`
}

// Answer is the receiver's reply. Accept must be true for the sender
// to proceed to the transit connection; Error carries a human-readable
// reason when Accept is false (spec.md §4.4, "answer: accept/reject").
type Answer struct {
	Accept bool   `json:"accept"`
	Error  string `json:"error,omitempty"`
}

func marshalOffer(o Offer) ([]byte, error)   { return json.Marshal(o) }
func unmarshalOffer(b []byte) (Offer, error) { var o Offer; err := json.Unmarshal(b, &o); return o, err }

func marshalAnswer(a Answer) ([]byte, error)   { return json.Marshal(a) }
func unmarshalAnswer(b []byte) (Answer, error) { var a Answer; err := json.Unmarshal(b, &a); return a, err }
