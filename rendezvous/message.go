package rendezvous

// Msg is the wire representation of every rendezvous-server message,
// client- or server-originated. Fields are flattened into one struct,
// as the teacher's signalling messages are (see
// saljam-webwormhole/cmd/ww/server.go's initmsg), since the mailbox
// server protocol in spec.md §6 is a small, fixed set of message
// shapes rather than a deep object model.
type Msg struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// bind
	AppID string `json:"appid,omitempty"`
	Side  string `json:"side,omitempty"`

	// allocate -> allocated
	Nameplate string `json:"nameplate,omitempty"`

	// list -> nameplates
	Nameplates []NameplateInfo `json:"nameplates,omitempty"`

	// claim -> claimed
	Mailbox string `json:"mailbox,omitempty"`

	// add / message
	Phase string `json:"phase,omitempty"`
	Body  string `json:"body,omitempty"` // hex-encoded

	// error
	Error string `json:"error,omitempty"`

	// welcome
	Welcome *Welcome `json:"welcome,omitempty"`

	// ack
	ServerTX float64 `json:"server_tx,omitempty"`
}

// NameplateInfo is one entry of a "nameplates" response.
type NameplateInfo struct {
	ID string `json:"id"`
}

// Welcome carries optional server-operator announcements sent with
// the first "welcome" message. Only MOTD and an optional hard error
// are modeled; everything else is opaque to this client.
type Welcome struct {
	MOTD  string `json:"motd,omitempty"`
	Error string `json:"error,omitempty"`
}

// Message types, client -> server.
const (
	TypeBind     = "bind"
	TypeAllocate = "allocate"
	TypeList     = "list"
	TypeClaim    = "claim"
	TypeRelease  = "release"
	TypeOpen     = "open"
	TypeAdd      = "add"
	TypeClose    = "close"
	TypePing     = "ping"
)

// Message types, server -> client.
const (
	TypeWelcome    = "welcome"
	TypeNameplates = "nameplates"
	TypeAllocated  = "allocated"
	TypeClaimed    = "claimed"
	TypeReleased   = "released"
	TypeMessage    = "message"
	TypeClosed     = "closed"
	TypeAck        = "ack"
	TypePong       = "pong"
	TypeError      = "error"
)

// Mood is the value closed/released mailboxes report to the server so
// it can be surfaced in operator dashboards ("happy", "lonely",
// "scared", "errory"), mirroring the moods used by the reference
// implementation's server test harness.
type Mood string

const (
	MoodHappy  Mood = "happy"
	MoodLonely Mood = "lonely"
	MoodScared Mood = "scared"
	MoodErrory Mood = "errory"
)
