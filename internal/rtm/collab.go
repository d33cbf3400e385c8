package rtm

import (
	"encoding/json"
	"time"
)

// MessageFlags qualify how a message is displayed.
type MessageFlags uint

const (
	// FlagSend marks a message authored by the local user.
	FlagSend MessageFlags = 1 << iota
	// FlagRecv marks a message received from the remote side.
	FlagRecv
)

// Entry is a materialized roster contact. Entries are owned by the
// roster collaborator; the session only holds references.
type Entry interface {
	Name() string
}

// Roster materializes and removes visible contacts for remote users.
// Entries are keyed by the direct-message channel id. Implementations
// are called with the session lock held and must not call back into
// the session.
type Roster interface {
	// FindEntry returns the entry cached under key, or nil.
	FindEntry(key string) Entry

	// CreateEntry materializes a new entry under key.
	CreateEntry(key, name string) Entry

	// RemoveEntry removes a previously materialized entry.
	RemoveEntry(e Entry)

	// RenameEntry updates the display name of an existing entry.
	RenameEntry(e Entry, name string)
}

// Formatter converts between wire payloads and displayable text.
type Formatter interface {
	// Render extracts displayable text from a message payload.
	Render(payload json.RawMessage) string

	// Compose converts user input to wire text.
	Compose(text string, flags MessageFlags) string
}

// Display presents conversations to the user. Rendering internals are
// out of scope; the session only pushes text through this contract.
type Display interface {
	ShowMessage(conversation, text string, flags MessageFlags, ts time.Time)
	ShowError(conversation, message string)
	ShowTyping(conversation, user string)
}

// LoginSequencer drives the login state machine. Advance is invoked on
// transport open and on the server's hello event; its internal states
// are external to this package.
type LoginSequencer interface {
	Advance()
}

type nopRoster struct{}

func (nopRoster) FindEntry(string) Entry          { return nil }
func (nopRoster) CreateEntry(key, _ string) Entry { return nopEntry(key) }
func (nopRoster) RemoveEntry(Entry)               {}
func (nopRoster) RenameEntry(Entry, string)       {}

type nopEntry string

func (e nopEntry) Name() string { return string(e) }

type nopFormatter struct{}

func (nopFormatter) Render(payload json.RawMessage) string {
	var msg struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(payload, &msg)
	return msg.Text
}

func (nopFormatter) Compose(text string, _ MessageFlags) string { return text }

type nopDisplay struct{}

func (nopDisplay) ShowMessage(string, string, MessageFlags, time.Time) {}
func (nopDisplay) ShowError(string, string)                            {}
func (nopDisplay) ShowTyping(string, string)                           {}

type nopLogin struct{}

func (nopLogin) Advance() {}
