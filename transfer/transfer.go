package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"wormhole.dev/internal/codec"
	"wormhole.dev/transit"
	"wormhole.dev/wormhole"
)

// VerifierOk lets a host confirm a session's Verifier out-of-band
// (displaying it and asking a human) before any bulk data moves. A
// nil VerifierOk skips the check, per spec.md §4.2's verifier concept
// and the Scared/Cancelled error handling it's meant to guard.
type VerifierOk func(hexVerifier string) bool

type ackMsg struct {
	SHA256 string `json:"sha256"`
}

// Send offers path (a file or a directory) to the peer on s, waits
// for the receiver's answer, and if accepted streams it over a fresh
// transit connection followed by a checksum ack, per spec.md §4.4.
func Send(ctx context.Context, s *wormhole.Session, path string, verifierOk VerifierOk) error {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	kind := KindFile
	size := info.Size()
	if info.IsDir() {
		kind = KindDirectory
		size, err = dirSize(path)
		if err != nil {
			return err
		}
	}

	ln, err := transit.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	offer := Offer{
		File:  FileOffer{Kind: kind, Name: filepath.Base(path), Size: size},
		Hints: transit.LocalDirectHints(port),
	}
	offerBody, err := marshalOffer(offer)
	if err != nil {
		return err
	}
	if err := s.Send(ctx, offerBody); err != nil {
		return err
	}

	answerBody, err := s.Receive(ctx)
	if err != nil {
		return err
	}
	answer, err := unmarshalAnswer(answerBody)
	if err != nil {
		return err
	}
	if !answer.Accept {
		if answer.Error != "" {
			return fmt.Errorf("%w: %s", ErrRejected, answer.Error)
		}
		return ErrRejected
	}

	if verifierOk != nil {
		v := s.Verifier()
		if !verifierOk(hex.EncodeToString(v[:])) {
			return wormhole.ErrScared
		}
	}

	sendKey, recvKey := s.TransitKeys()
	pipe, _, err := transit.Race(ctx, transit.RoleSender, ln, nil, sendKey, recvKey)
	if err != nil {
		return err
	}
	defer pipe.Close()

	h := sha256.New()
	body := io.MultiWriter(pipe, h)

	if kind == KindDirectory {
		if err := writeTar(body, path); err != nil {
			return err
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(body, f)
		f.Close()
		if err != nil {
			return err
		}
	}

	ack, err := json.Marshal(ackMsg{SHA256: hex.EncodeToString(h.Sum(nil))})
	if err != nil {
		return err
	}
	return codec.WriteRecord(pipe, ack)
}

// Receive waits for an offer on s, decides whether to accept it
// (refusing any file that would overwrite an existing path, per
// spec.md §4.4), and on acceptance streams the bulk data into destDir
// and verifies the trailing checksum ack.
func Receive(ctx context.Context, s *wormhole.Session, destDir string, verifierOk VerifierOk) (*FileOffer, error) {
	offerBody, err := s.Receive(ctx)
	if err != nil {
		return nil, err
	}
	offer, err := unmarshalOffer(offerBody)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(destDir, filepath.Base(filepath.Clean(offer.File.Name)))
	if offer.File.Kind == KindFile {
		if _, err := os.Stat(target); err == nil {
			reject(ctx, s, ErrWouldOverwrite)
			return nil, ErrWouldOverwrite
		}
	}
	if verifierOk != nil {
		v := s.Verifier()
		if !verifierOk(hex.EncodeToString(v[:])) {
			reject(ctx, s, wormhole.ErrScared)
			return nil, wormhole.ErrScared
		}
	}

	answerBody, err := marshalAnswer(Answer{Accept: true})
	if err != nil {
		return nil, err
	}
	if err := s.Send(ctx, answerBody); err != nil {
		return nil, err
	}

	sendKey, recvKey := s.TransitKeys()
	pipe, _, err := transit.Race(ctx, transit.RoleReceiver, nil, offer.Hints, sendKey, recvKey)
	if err != nil {
		return nil, err
	}
	defer pipe.Close()

	h := sha256.New()
	tee := io.TeeReader(pipe, h)

	switch offer.File.Kind {
	case KindDirectory:
		if err := readTar(tee, target); err != nil {
			return nil, err
		}
	default:
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return nil, err
		}
		written, err := io.CopyN(f, tee, offer.File.Size)
		f.Close()
		if err != nil && err != io.EOF {
			os.Remove(target)
			return nil, err
		}
		if written != offer.File.Size {
			os.Remove(target)
			return nil, ErrSizeMismatch
		}
	}

	ackBody, err := codec.ReadRecord(pipe)
	if err != nil {
		if offer.File.Kind == KindFile {
			os.Remove(target)
		}
		return nil, err
	}
	var ack ackMsg
	if err := json.Unmarshal(ackBody, &ack); err != nil {
		return nil, err
	}
	if ack.SHA256 != hex.EncodeToString(h.Sum(nil)) {
		if offer.File.Kind == KindFile {
			os.Remove(target)
		}
		return nil, ErrChecksumMismatch
	}

	return &offer.File, nil
}

// reject sends a rejecting Answer, best-effort: the caller is already
// returning the real error and a failure to notify the peer shouldn't
// mask it.
func reject(ctx context.Context, s *wormhole.Session, reason error) {
	body, err := marshalAnswer(Answer{Accept: false, Error: reason.Error()})
	if err != nil {
		return
	}
	s.Send(ctx, body)
}
