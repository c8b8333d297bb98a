package crypto

import (
	"salsa.debian.org/vasudev/gospake2"
)

// PAKE wraps a single-use SPAKE2 handshake over the Ed25519 prime-order
// subgroup, symmetric variant (both sides hold identical group
// constants, M == N), matching spec.md's design notes §9. The password
// is appID+":"+codePassword, as spec.md §9 prescribes, so that peers
// using the same nameplate-password pair under different AppIds never
// share a PAKE password.
type PAKE struct {
	state *gospake2.SPAKE2
}

// StartPAKE begins a SPAKE2 handshake for the given application id and
// code password, returning the outbound message to send to the peer.
func StartPAKE(appID, password string) (msg []byte, p *PAKE, err error) {
	s := gospake2.SPAKE2Symmetric(
		gospake2.NewPassword(appID+":"+password),
		gospake2.NewIdentityS(appID),
	)
	return s.Start(), &PAKE{state: &s}, nil
}

// Finish completes the handshake given the peer's message and returns
// the raw SPAKE2 shared secret. Callers must still run it through
// DeriveMasterKey before using it as a MasterKey.
func (p *PAKE) Finish(peerMsg []byte) ([]byte, error) {
	return p.state.Finish(peerMsg)
}
