package wormhole

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCodeRoundTrip(t *testing.T) {
	c, err := ParseCode("7-purple-sausalito")
	require.NoError(t, err)
	require.Equal(t, Code{Nameplate: "7", Password: "purple-sausalito"}, c)
	require.Equal(t, "7-purple-sausalito", c.String())
}

func TestParseCodeRejectsNonDecimalNameplate(t *testing.T) {
	_, err := ParseCode("seven-purple-sausalito")
	require.Error(t, err)
}

func TestParseCodeRejectsMissingSeparator(t *testing.T) {
	_, err := ParseCode("nopassword")
	require.Error(t, err)
}

func TestURIRoundTrip(t *testing.T) {
	c := Code{Nameplate: "42", Password: "purple-sausalito"}
	u := URI(c, "wss://mailbox.example/v1")

	gotCode, gotURL, err := ParseURI(u)
	require.NoError(t, err)
	require.Equal(t, c, gotCode)
	require.Equal(t, "wss://mailbox.example/v1", gotURL)
}
