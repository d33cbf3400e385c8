package rtm

// User is a remote participant known to the session. Users persist
// across reconnects.
type User struct {
	ID       string
	Name     string
	Presence string

	// IM is the direct-message channel id, empty while no channel
	// exists. The session's DM index is derived from this field and is
	// never the sole owner of the relationship.
	IM string

	// LastMessageTS is the timestamp of the most recent inbound message
	// attributed to this user, recorded by message ingest and compared
	// by the send pipeline to suppress echoed self-sends.
	LastMessageTS string

	entry Entry
}

// Team identifies the workspace the session is connected to.
type Team struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// ChannelKind classifies a channel-roster event for visibility
// decisions.
type ChannelKind int

const (
	// ChannelUnknown means the event only renames; the stored kind is kept.
	ChannelUnknown ChannelKind = iota
	// ChannelMember is a public channel the session's user is a member of.
	ChannelMember
	// ChannelGroup is a private group.
	ChannelGroup
	// ChannelPublic is a public channel, membership not implied.
	ChannelPublic
	// ChannelDeleted removes the channel from the roster.
	ChannelDeleted
)

// String returns the string representation of ChannelKind.
func (k ChannelKind) String() string {
	switch k {
	case ChannelMember:
		return "MEMBER"
	case ChannelGroup:
		return "GROUP"
	case ChannelPublic:
		return "PUBLIC"
	case ChannelDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Channel is a non-DM conversation tracked for roster visibility.
type Channel struct {
	ID     string
	Name   string
	Kind   ChannelKind
	Member bool
}
