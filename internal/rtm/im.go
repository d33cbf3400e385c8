package rtm

import (
	"encoding/json"
	"sort"

	"github.com/teaglass/rtmchat/pkg/wire"
)

// channelRef decodes a payload field that is either a bare channel id
// string or an object carrying id and, for DM channels, user/is_open.
type channelRef struct {
	ID     string
	Name   string
	User   string
	IsOpen *bool
}

func (c *channelRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.ID = s
		return nil
	}
	var obj struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		User   string `json:"user"`
		IsOpen *bool  `json:"is_open"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.ID, c.Name, c.User, c.IsOpen = obj.ID, obj.Name, obj.User, obj.IsOpen
	return nil
}

// implicitOpen marks a channel payload that arrives as the side effect
// of another call, where presence of the companion user payload implies
// the channel is open.
var implicitOpen = json.RawMessage(`{}`)

func (s *Session) handleIMOpen(payload json.RawMessage) {
	var ev struct {
		Channel json.RawMessage `json:"channel"`
		User    json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Channel == nil {
		s.log.Debug().Msg("malformed im event")
		return
	}
	s.imSet(ev.Channel, ev.User, true)
}

func (s *Session) handleIMClose(payload json.RawMessage) {
	var ev struct {
		Channel json.RawMessage `json:"channel"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Channel == nil {
		s.log.Debug().Msg("malformed im event")
		return
	}
	s.imSet(ev.Channel, nil, true)
}

// imSet reconciles one direct-message channel payload against the user
// and DM indices. channel is either a bare channel id or an object;
// openUser, when non-nil, marks an implicit open and may carry the user
// id. Unknown users are logged and ignored without mutation. When
// anything changed and updateSub is set, the presence-subscription set
// is recomputed and pushed, keeping server-side presence aligned with
// the users visible in the roster. Returns the resolved user.
func (s *Session) imSet(channel, openUser json.RawMessage, updateSub bool) *User {
	var ref channelRef
	if err := json.Unmarshal(channel, &ref); err != nil || ref.ID == "" {
		s.log.Debug().Msg("im payload without channel id")
		return nil
	}

	isOpen := openUser != nil
	if ref.IsOpen != nil {
		isOpen = *ref.IsOpen
	}

	userID := ref.User
	if userID == "" && openUser != nil {
		var uid string
		if err := json.Unmarshal(openUser, &uid); err == nil {
			userID = uid
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	var user *User
	if uid, ok := s.ims[ref.ID]; ok {
		user = s.users[uid]
		if user != nil && userID != "" && user.ID != userID {
			s.log.Warn().
				Str("channel", ref.ID).
				Str("indexed", user.ID).
				Str("event", userID).
				Msg("im channel attributed to a different user")
		}
	}
	if user == nil {
		if userID == "" {
			s.log.Warn().Str("channel", ref.ID).Msg("im event without user")
			return nil
		}
		user = s.users[userID]
		if user == nil {
			s.log.Warn().Str("channel", ref.ID).Str("user", userID).Msg("im event for unknown user")
			return nil
		}
		if user.IM != ref.ID {
			if user.IM != "" {
				delete(s.ims, user.IM)
			}
			user.IM = ref.ID
			s.ims[ref.ID] = user.ID
			changed = true
		}
	}

	if isOpen {
		if user.entry == nil {
			if e := s.roster.FindEntry(ref.ID); e != nil {
				user.entry = e
				if user.Name != "" && user.Name != e.Name() {
					s.roster.RenameEntry(e, user.Name)
					changed = true
				}
			} else {
				user.entry = s.roster.CreateEntry(ref.ID, user.Name)
				changed = true
			}
		}
	} else {
		if user.entry != nil {
			s.roster.RemoveEntry(user.entry)
			user.entry = nil
			changed = true
		}
		if user.IM != "" {
			delete(s.ims, user.IM)
			user.IM = ""
			changed = true
		}
	}

	s.log.Debug().
		Str("channel", ref.ID).
		Str("user", user.ID).
		Bool("open", isOpen).
		Msg("im reconciled")

	if changed && updateSub {
		s.presenceSubLocked()
	}
	return user
}

// presenceSubLocked pushes the full presence-subscription set: every
// user currently holding a materialized roster entry. Fire and forget;
// an empty list is valid and clears the server-side subscription.
func (s *Session) presenceSubLocked() {
	ids := make([]string, 0, len(s.ims))
	for _, user := range s.users {
		if user.entry == nil {
			continue
		}
		ids = append(ids, user.ID)
	}
	sort.Strings(ids)

	raw, _ := json.Marshal(ids)
	if _, err := s.callLocked("presence_sub", []wire.Field{wire.Raw("ids", raw)}, nil, nil); err != nil {
		s.log.Debug().Err(err).Msg("presence_sub not sent")
	}
}
