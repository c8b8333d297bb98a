// Package crypto implements the key-derivation and sealed-message
// primitives shared by the rendezvous, wormhole and transit packages:
// HKDF-SHA256 purpose keys, a SHA256 verifier, and secretbox-based
// sealing with random or counter nonces.
package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the length in bytes of a master key, a purpose key, and a
// verifier.
const KeySize = 32

// NonceSize is the length in bytes of a secretbox nonce.
const NonceSize = 24

// ErrDecrypt is returned when a secretbox fails to open. Callers treat
// this identically whether it is caused by a wrong code or by
// tampering; the two are indistinguishable from ciphertext alone.
var ErrDecrypt = errors.New("crypto: message failed to decrypt")

// Purpose tags a derived key with the label it was derived for, so
// that a key derived for one purpose cannot be silently used for
// another. There is no runtime enforcement beyond the type boundary:
// every derivation site must go through DerivePurposeKey and every use
// site must accept a Key, not a bare []byte, to keep the compiler
// honest about which purpose a key was meant for.
type Purpose string

// Key is a 32-byte value derived for exactly one Purpose.
type Key struct {
	Purpose Purpose
	Bytes   [KeySize]byte
}

// DeriveMasterKey computes MasterKey = SHA256(spakeOutput), per
// spec.md §4.2.
func DeriveMasterKey(spakeOutput []byte) [KeySize]byte {
	return sha256.Sum256(spakeOutput)
}

// DerivePurposeKey computes purpose_key(p) = HKDF(masterKey, salt=nil,
// info="wormhole:<appID>:"+purpose, len=32).
func DerivePurposeKey(masterKey [KeySize]byte, appID string, purpose Purpose) Key {
	info := []byte("wormhole:" + appID + ":" + string(purpose))
	r := hkdf.New(sha256.New, masterKey[:], nil, info)
	k := Key{Purpose: purpose}
	if _, err := io.ReadFull(r, k.Bytes[:]); err != nil {
		// hkdf.Read only fails if more bytes are requested than the
		// expand step can produce (255*HashSize); 32 bytes never hits
		// that ceiling.
		panic("crypto: hkdf exhausted: " + err.Error())
	}
	return k
}

// Verifier computes SHA256("wormhole:verifier" || masterKey), a short
// fingerprint suitable for an out-of-band human comparison.
func Verifier(masterKey [KeySize]byte) [KeySize]byte {
	h := sha256.New()
	h.Write([]byte("wormhole:verifier"))
	h.Write(masterKey[:])
	var out [KeySize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SealRandomNonce encrypts plaintext under key with a freshly generated
// random 24-byte nonce and returns nonce||ciphertext.
func SealRandomNonce(rand io.Reader, key Key, plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &key.Bytes), nil
}

// OpenRandomNonce decrypts a nonce||ciphertext message produced by
// SealRandomNonce.
func OpenRandomNonce(key Key, sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize {
		return nil, ErrDecrypt
	}
	var nonce [NonceSize]byte
	copy(nonce[:], sealed[:NonceSize])
	out, ok := secretbox.Open(nil, sealed[NonceSize:], &nonce, &key.Bytes)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}

// CounterNonce encodes a per-direction record counter as a big-endian,
// zero-padded 24-byte nonce, per spec.md §4.3 ("the 24-byte nonce is
// the big-endian encoding of that counter, zero-padded").
func CounterNonce(counter uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	binary.BigEndian.PutUint64(nonce[NonceSize-8:], counter)
	return nonce
}

// SealWithNonce encrypts plaintext under key with an explicit nonce,
// for callers (the transit record layer) that must transmit the nonce
// themselves rather than have one generated for them.
func SealWithNonce(key Key, nonce [NonceSize]byte, plaintext []byte) []byte {
	return secretbox.Seal(nil, plaintext, &nonce, &key.Bytes)
}

// OpenWithNonce decrypts a ciphertext sealed with SealWithNonce.
func OpenWithNonce(key Key, nonce [NonceSize]byte, ciphertext []byte) ([]byte, error) {
	out, ok := secretbox.Open(nil, ciphertext, &nonce, &key.Bytes)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}
