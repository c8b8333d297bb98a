package crypto

import (
	"bytes"
	crand "crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPurposeKeySeparation(t *testing.T) {
	mk := DeriveMasterKey([]byte("some spake2 output"))
	k1 := DerivePurposeKey(mk, "app", Purpose("one"))
	k2 := DerivePurposeKey(mk, "app", Purpose("two"))

	require.NotEqual(t, k1.Bytes, k2.Bytes, "purpose keys for distinct purposes must differ")

	sealed, err := SealRandomNonce(crand.Reader, k1, []byte("hello"))
	require.NoError(t, err)

	_, err = OpenRandomNonce(k2, sealed)
	require.ErrorIs(t, err, ErrDecrypt, "a message sealed under k1 must not open under k2")

	opened, err := OpenRandomNonce(k1, sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), opened)
}

func TestSameCodeSameMasterKey(t *testing.T) {
	msgA, a, err := StartPAKE("test-app", "7-purple-sausalito")
	require.NoError(t, err)
	msgB, b, err := StartPAKE("test-app", "7-purple-sausalito")
	require.NoError(t, err)

	outA, err := a.Finish(msgB)
	require.NoError(t, err)
	outB, err := b.Finish(msgA)
	require.NoError(t, err)

	mkA := DeriveMasterKey(outA)
	mkB := DeriveMasterKey(outB)
	require.Equal(t, mkA, mkB)
	require.Equal(t, Verifier(mkA), Verifier(mkB))
}

func TestWrongCodeDifferentMasterKey(t *testing.T) {
	msgA, a, err := StartPAKE("test-app", "7-purple-sausalito")
	require.NoError(t, err)
	msgB, b, err := StartPAKE("test-app", "7-purple-wrong")
	require.NoError(t, err)

	outA, err := a.Finish(msgB)
	require.NoError(t, err)
	outB, err := b.Finish(msgA)
	require.NoError(t, err)

	mkA := DeriveMasterKey(outA)
	mkB := DeriveMasterKey(outB)
	require.NotEqual(t, mkA, mkB)
}

func TestCounterNonceMonotonic(t *testing.T) {
	mk := DeriveMasterKey([]byte("x"))
	k := DerivePurposeKey(mk, "app", Purpose("transit_sender"))

	n0 := CounterNonce(0)
	n1 := CounterNonce(1)
	if bytes.Equal(n0[:], n1[:]) {
		t.Fatal("nonces for distinct counters must differ")
	}

	ct := SealWithNonce(k, n0, []byte("record"))
	pt, err := OpenWithNonce(k, n0, ct)
	require.NoError(t, err)
	require.Equal(t, []byte("record"), pt)

	_, err = OpenWithNonce(k, n1, ct)
	require.Error(t, err, "opening with the wrong nonce must fail")
}
