package rtm

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/teaglass/rtmchat/pkg/wire"
)

// MaxMessageRunes is the protocol limit on one outbound message,
// measured in the display encoding.
const MaxMessageRunes = 4000

// sendState tracks one user-initiated send through its lifecycle.
type sendState int

const (
	sendEnsureChannel sendState = iota
	sendSending
	sendDone
	sendFailed
)

// imSend carries one outbound direct message through ensure-channel,
// send, and echo reconciliation. It is discarded after either terminal
// state.
type imSend struct {
	userID string
	text   string
	flags  MessageFlags
	state  sendState
}

// SendMessage sends a direct message to a user, addressed by id or
// display name, opening the DM channel first when none is open.
// Validation failures (unknown user, oversize message) are synchronous
// and happen before any network activity; everything after the first
// write is reported through the display collaborator.
func (s *Session) SendMessage(who, text string) error {
	composed := s.format.Compose(text, FlagSend)
	if utf8.RuneCountInString(composed) > MaxMessageRunes {
		return ErrMessageTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.lookupUserLocked(who)
	if user == nil {
		return fmt.Errorf("%w: %s", ErrUnknownUser, who)
	}

	send := &imSend{userID: user.ID, text: composed, flags: FlagSend}
	if user.IM == "" {
		_, err := s.callLocked("im.open", []wire.Field{
			wire.String("user", user.ID),
			wire.Bool("return_im", true),
		}, sendOpenDone, send)
		return err
	}

	send.state = sendSending
	_, err := s.callLocked("message", []wire.Field{
		wire.String("channel", user.IM),
		wire.String("text", send.text),
	}, sendMessageDone, send)
	return err
}

// sendOpenDone continues a send once the channel-open response arrives.
// The returned channel payload is reconciled first; the message is only
// sent if the user ends up with an open channel.
func sendOpenDone(s *Session, ctx any, res Result) {
	send := ctx.(*imSend)
	if res.Cancelled() {
		send.state = sendFailed
		return
	}

	if res.OK() {
		var resp struct {
			Channel json.RawMessage `json:"channel"`
		}
		if err := json.Unmarshal(res.Payload(), &resp); err == nil && resp.Channel != nil {
			s.imSet(resp.Channel, implicitOpen, true)
		}
	}

	s.mu.Lock()
	user := s.users[send.userID]
	name := send.userID
	channel := ""
	if user != nil {
		name = user.Name
		channel = user.IM
	}

	errMsg := res.ErrMessage()
	if errMsg == "" && channel == "" {
		errMsg = "failed to open IM channel"
	}
	if errMsg != "" {
		send.state = sendFailed
		s.mu.Unlock()
		s.display.ShowError(name, errMsg)
		return
	}

	send.state = sendSending
	_, err := s.callLocked("message", []wire.Field{
		wire.String("channel", channel),
		wire.String("text", send.text),
	}, sendMessageDone, send)
	s.mu.Unlock()

	if err != nil {
		send.state = sendFailed
		s.display.ShowError(name, err.Error())
	}
}

// sendMessageDone reconciles the send response against the echo the
// server may stream back: if message ingest already recorded this
// timestamp for the user, the message is not displayed a second time.
func sendMessageDone(s *Session, ctx any, res Result) {
	send := ctx.(*imSend)
	if res.Cancelled() {
		send.state = sendFailed
		return
	}

	s.mu.Lock()
	name := send.userID
	lastTS := ""
	if user, ok := s.users[send.userID]; ok {
		if user.Name != "" {
			name = user.Name
		}
		lastTS = user.LastMessageTS
	}
	s.mu.Unlock()

	if msg := res.ErrMessage(); msg != "" {
		send.state = sendFailed
		s.display.ShowError(name, msg)
		return
	}
	send.state = sendDone

	var resp struct {
		TS string `json:"ts"`
	}
	_ = json.Unmarshal(res.Payload(), &resp)
	if resp.TS != "" && wire.CompareTS(resp.TS, lastTS) == 0 {
		// the echo already came through the event path
		return
	}

	text := s.format.Render(res.Payload())
	s.display.ShowMessage(name, text, send.flags, wire.TSTime(resp.TS))
}
