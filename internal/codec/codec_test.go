package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("hello"),
		bytes.Repeat([]byte{0x41}, 1<<20),
	}
	for _, m := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteRecord(&buf, m))
		require.Equal(t, LengthPrefixSize+len(m), buf.Len())

		got, err := ReadRecord(&buf)
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
}

func TestReadRecordRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	hdr := []byte{0xff, 0xff, 0xff, 0xff}
	buf.Write(hdr)
	_, err := ReadRecord(&buf)
	require.Error(t, err)
}

func TestHexRoundTrip(t *testing.T) {
	b := []byte{0x01, 0xab, 0xff, 0x00}
	s := EncodeHex(b)
	got, err := DecodeHex(s)
	require.NoError(t, err)
	require.Equal(t, b, got)

	_, err = DecodeHex("abc")
	require.ErrorIs(t, err, ErrOddHex)
}
