package rtm

import (
	"encoding/json"

	"github.com/teaglass/rtmchat/pkg/wire"
)

type eventHandler func(s *Session, payload json.RawMessage)

// eventHandlers maps the server's event type tags to domain handlers.
// Unknown tags are logged and ignored; they are never an error.
var eventHandlers = map[string]eventHandler{
	"message":               (*Session).handleMessage,
	"user_typing":           (*Session).handleTyping,
	"presence_change":       (*Session).handlePresence,
	"presence_change_batch": (*Session).handlePresence,
	"im_close":              (*Session).handleIMClose,
	"im_open":               (*Session).handleIMOpen,
	// im_created may describe a channel that was never opened; the open
	// handler is a safe no-op in that case
	"im_created": (*Session).handleIMOpen,
	"member_joined_channel": func(s *Session, p json.RawMessage) {
		s.handleMembership(p, true)
	},
	"member_left_channel": func(s *Session, p json.RawMessage) {
		s.handleMembership(p, false)
	},
	"user_change":       (*Session).handleUserChange,
	"team_join":         (*Session).handleUserChange,
	"channel_joined":    channelUpdate(ChannelMember),
	"group_joined":      channelUpdate(ChannelGroup),
	"group_unarchive":   channelUpdate(ChannelGroup),
	"channel_left":      channelUpdate(ChannelPublic),
	"channel_created":   channelUpdate(ChannelPublic),
	"channel_unarchive": channelUpdate(ChannelPublic),
	"channel_rename":    channelUpdate(ChannelUnknown),
	"group_rename":      channelUpdate(ChannelUnknown),
	"channel_archive":   channelUpdate(ChannelDeleted),
	"channel_deleted":   channelUpdate(ChannelDeleted),
	"group_archive":     channelUpdate(ChannelDeleted),
	"group_left":        channelUpdate(ChannelDeleted),
	"hello":             (*Session).handleHello,
}

func channelUpdate(kind ChannelKind) eventHandler {
	return func(s *Session, payload json.RawMessage) {
		s.handleChannelUpdate(payload, kind)
	}
}

func (s *Session) dispatchEvent(typ string, payload json.RawMessage) {
	h, ok := eventHandlers[typ]
	if !ok {
		s.log.Debug().Str("frame_type", typ).Msg("unhandled event type")
		return
	}
	h(s, payload)
}

// handleMessage ingests one inbound message: records the sender's
// last-seen timestamp for echo suppression, then hands the payload to
// the formatting and display collaborators.
func (s *Session) handleMessage(payload json.RawMessage) {
	var ev struct {
		Channel string `json:"channel"`
		User    string `json:"user"`
		TS      string `json:"ts"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.log.Debug().Err(err).Msg("malformed message event")
		return
	}

	s.mu.Lock()
	conv := s.conversationKeyLocked(ev.Channel)
	// for DM channels the timestamp is attributed to the conversation
	// peer, so an echoed self-send still lands on the record the send
	// pipeline checks
	target := ev.User
	if uid, ok := s.ims[ev.Channel]; ok {
		target = uid
	}
	if user, ok := s.users[target]; ok {
		user.LastMessageTS = ev.TS
	}
	s.mu.Unlock()

	text := s.format.Render(payload)
	s.display.ShowMessage(conv, text, FlagRecv, wire.TSTime(ev.TS))
}

func (s *Session) handleTyping(payload json.RawMessage) {
	var ev struct {
		Channel string `json:"channel"`
		User    string `json:"user"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}

	s.mu.Lock()
	conv := s.conversationKeyLocked(ev.Channel)
	user, ok := s.users[ev.User]
	var name string
	if ok {
		name = user.Name
	}
	s.mu.Unlock()

	if !ok {
		s.log.Debug().Str("user", ev.User).Msg("typing event for unknown user")
		return
	}
	s.display.ShowTyping(conv, name)
}

// handlePresence records presence for a single user or a batch.
func (s *Session) handlePresence(payload json.RawMessage) {
	var ev struct {
		Presence string   `json:"presence"`
		User     string   `json:"user"`
		Users    []string `json:"users"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	ids := ev.Users
	if ev.User != "" {
		ids = append(ids, ev.User)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			user.Presence = ev.Presence
		} else {
			s.log.Debug().Str("user", id).Msg("presence for unknown user")
		}
	}
}

// handleUserChange upserts a user's profile; renaming a user with a
// materialized roster entry renames the entry.
func (s *Session) handleUserChange(payload json.RawMessage) {
	var ev struct {
		User struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil || ev.User.ID == "" {
		s.log.Debug().Msg("malformed user event")
		return
	}

	s.mu.Lock()
	s.upsertUserLocked(ev.User.ID, ev.User.Name)
	s.mu.Unlock()
}

// handleChannelUpdate maintains the non-DM channel index used for
// roster visibility.
func (s *Session) handleChannelUpdate(payload json.RawMessage, kind ChannelKind) {
	var ev struct {
		Channel channelRef `json:"channel"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Channel.ID == "" {
		s.log.Debug().Msg("malformed channel event")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == ChannelDeleted {
		delete(s.channels, ev.Channel.ID)
		return
	}

	ch, ok := s.channels[ev.Channel.ID]
	if !ok {
		ch = &Channel{ID: ev.Channel.ID}
		s.channels[ev.Channel.ID] = ch
	}
	if ev.Channel.Name != "" {
		ch.Name = ev.Channel.Name
	}
	// a rename-only event carries no visibility change
	if kind != ChannelUnknown {
		ch.Kind = kind
		ch.Member = kind == ChannelMember || kind == ChannelGroup
	}
}

// handleMembership flips the self-membership flag on an indexed channel
// when the joining or leaving user is the session's own.
func (s *Session) handleMembership(payload json.RawMessage, joined bool) {
	var ev struct {
		Channel string `json:"channel"`
		User    string `json:"user"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self == nil || ev.User != s.self.ID {
		return
	}
	if ch, ok := s.channels[ev.Channel]; ok {
		ch.Member = joined
	}
}

// handleHello drives the login state machine forward once the server
// acknowledges the stream.
func (s *Session) handleHello(json.RawMessage) {
	s.login.Advance()
}

// conversationKeyLocked maps a channel id to the display conversation:
// the user's name for DM channels, the raw id otherwise.
func (s *Session) conversationKeyLocked(channel string) string {
	if uid, ok := s.ims[channel]; ok {
		if user, ok := s.users[uid]; ok && user.Name != "" {
			return user.Name
		}
	}
	return channel
}
