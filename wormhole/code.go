package wormhole

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Code is a wormhole code: a nameplate paired with a password, shown
// to users as "<nameplate>-<password>" (spec.md §3, §6). The password
// half is usually random bytes encoded as words from the wordlist
// package's parity-checked lists (see wordlist.GeneratePassword) but
// any non-empty string is accepted, since a human can also type one in
// by hand.
type Code struct {
	Nameplate string
	Password  string
}

// String renders the canonical "nameplate-password" form.
func (c Code) String() string {
	return c.Nameplate + "-" + c.Password
}

// ParseCode parses a code of the form "<nameplate>-<password>". The
// nameplate must be a non-empty run of decimal digits; everything
// after the first hyphen is the password, including further hyphens
// (wordlist-encoded passwords are themselves hyphen-joined).
func ParseCode(s string) (Code, error) {
	i := strings.IndexByte(s, '-')
	if i <= 0 {
		return Code{}, &CodeError{Reason: "missing nameplate separator"}
	}
	nameplate, password := s[:i], s[i+1:]
	if _, err := strconv.ParseUint(nameplate, 10, 64); err != nil {
		return Code{}, &CodeError{Reason: "nameplate must be decimal digits"}
	}
	if password == "" {
		return Code{}, &CodeError{Reason: "password must not be empty"}
	}
	return Code{Nameplate: nameplate, Password: password}, nil
}

// URIScheme is the scheme of a wormhole-transfer URI (spec.md §6).
const URIScheme = "wormhole-transfer"

// URI renders a "wormhole-transfer:<code>?version=0&rendezvous=<url>"
// URI for c against the given rendezvous server URL.
func URI(c Code, rendezvousURL string) string {
	v := url.Values{}
	v.Set("version", "0")
	if rendezvousURL != "" {
		v.Set("rendezvous", rendezvousURL)
	}
	return fmt.Sprintf("%s:%s?%s", URIScheme, c.String(), v.Encode())
}

// ParseURI parses a wormhole-transfer URI back into its code and
// rendezvous URL (empty if not present).
func ParseURI(s string) (Code, string, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Code{}, "", err
	}
	if u.Scheme != URIScheme {
		return Code{}, "", &CodeError{Reason: "not a " + URIScheme + " URI"}
	}
	code, err := ParseCode(u.Opaque)
	if err != nil {
		return Code{}, "", err
	}
	return code, u.Query().Get("rendezvous"), nil
}
