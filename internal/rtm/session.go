// Package rtm implements the real-time protocol client: one persistent
// message-stream connection per session, multiplexing correlated
// requests with server-initiated events, and keeping the local
// direct-message channel index synchronized with pushed lifecycle
// events.
package rtm

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/teaglass/rtmchat/internal/transport"
)

// DefaultPingInterval is the keepalive probe interval.
const DefaultPingInterval = 60 * time.Second

var (
	// ErrNotConnected is returned when a request is issued while no
	// connection is established.
	ErrNotConnected = errors.New("rtm: not connected")

	// ErrUnknownUser is returned when a send targets a user the session
	// has no mapping for.
	ErrUnknownUser = errors.New("rtm: unknown user")

	// ErrMessageTooLong is returned for outbound messages over the
	// 4000-character protocol limit.
	ErrMessageTooLong = errors.New("rtm: message exceeds 4000 characters")
)

// Options configures a Session's collaborators. Nil collaborators fall
// back to no-op implementations.
type Options struct {
	Roster    Roster
	Formatter Formatter
	Display   Display
	Login     LoginSequencer

	// IdleTime reports how long the local user has been idle; zero
	// means actively present. Nil is treated as always active.
	IdleTime func() time.Duration

	PingInterval time.Duration
	Logger       zerolog.Logger
}

// Session is the process state for one logical connection: the live
// transport handle (nil while disconnected), the request-id counter,
// the call registry, and the user/channel indices. The indices persist
// across reconnects; the transport and keepalive timer are
// per-connection.
//
// A single mutex guards the connection manager, the call registry, and
// the channel reconciler, so inbound frames are processed one at a time
// and outbound sends are serialized onto the one write path.
type Session struct {
	id      string
	log     zerolog.Logger
	roster  Roster
	format  Formatter
	display Display
	login   LoginSequencer
	idle    func() time.Duration

	pingInterval time.Duration
	disconnects  chan error

	mu    sync.Mutex
	conn  transport.Conn
	seq   uint64
	calls *callRegistry
	users map[string]*User
	// ims maps DM channel id to user id. Entries are re-resolved through
	// the user index on every access; the index never holds a direct
	// pointer and is always derived from User.IM.
	ims      map[string]string
	channels map[string]*Channel
	self     *User
	team     Team

	pingStop chan struct{}
	pingDone chan struct{}
}

// NewSession creates a disconnected session. Attach hands it a live
// transport.
func NewSession(opts Options) *Session {
	if opts.Roster == nil {
		opts.Roster = nopRoster{}
	}
	if opts.Formatter == nil {
		opts.Formatter = nopFormatter{}
	}
	if opts.Display == nil {
		opts.Display = nopDisplay{}
	}
	if opts.Login == nil {
		opts.Login = nopLogin{}
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}

	id := uuid.NewString()
	return &Session{
		id:           id,
		log:          opts.Logger.With().Str("session_id", id).Logger(),
		roster:       opts.Roster,
		format:       opts.Formatter,
		display:      opts.Display,
		login:        opts.Login,
		idle:         opts.IdleTime,
		pingInterval: opts.PingInterval,
		disconnects:  make(chan error, 1),
		calls:        newCallRegistry(),
		users:        make(map[string]*User),
		ims:          make(map[string]string),
		channels:     make(map[string]*Channel),
	}
}

// ID returns the session's log-correlation identifier.
func (s *Session) ID() string { return s.id }

// Connected reports whether a transport is currently attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Disconnects delivers one connection-lost cause per teardown.
// Reconnection is the owner's decision; the session never retries on
// its own.
func (s *Session) Disconnects() <-chan error {
	return s.disconnects
}

// Self returns the session's own user, nil before the connect
// bootstrap completes.
func (s *Session) Self() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// TeamInfo returns the workspace identity recorded by the connect
// bootstrap.
func (s *Session) TeamInfo() Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.team
}

// UpsertUser records or updates a user in the session index. The login
// layer populates the index from the initial user listing; profile
// events keep it current afterwards.
func (s *Session) UpsertUser(id, name string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertUserLocked(id, name)
}

func (s *Session) upsertUserLocked(id, name string) *User {
	if id == "" {
		return nil
	}
	user, ok := s.users[id]
	if !ok {
		user = &User{ID: id, Name: name}
		s.users[id] = user
		return user
	}
	if name != "" && name != user.Name {
		user.Name = name
		if user.entry != nil {
			s.roster.RenameEntry(user.entry, name)
		}
	}
	return user
}

// lookupUserLocked resolves a send target by user id first, then by
// display name.
func (s *Session) lookupUserLocked(who string) *User {
	if user, ok := s.users[who]; ok {
		return user
	}
	for _, user := range s.users {
		if user.Name == who {
			return user
		}
	}
	return nil
}

// UserChannel returns the DM channel id currently associated with a
// user, empty when none is open.
func (s *Session) UserChannel(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		return user.IM
	}
	return ""
}
