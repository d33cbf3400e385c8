package rtm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teaglass/rtmchat/internal/transport"
	"github.com/teaglass/rtmchat/pkg/wire"
)

// Attach hands a live transport to the session: it becomes the single
// write path, the reader goroutine starts, the keepalive timer is
// created, and the login sequencer is advanced for the open signal.
// Any previously attached connection must have been torn down first.
func (s *Session) Attach(conn transport.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.startKeepaliveLocked()
	s.mu.Unlock()

	s.log.Info().Str("remote", conn.RemoteAddr()).Msg("connected")
	s.login.Advance()
	go s.readLoop(conn)
}

// Close tears down the active connection, if any. The user and channel
// indices survive for a later Attach.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		s.teardown(conn, errors.New("session closed"))
	}
}

// Call sends a correlated request over the stream. cb, when non-nil,
// runs once on the reader goroutine with the matching response, a
// server error, or the cancelled outcome when the connection is torn
// down first. Returns the allocated request id.
func (s *Session) Call(typ string, fields []wire.Field, cb Callback, ctx any) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callLocked(typ, fields, cb, ctx)
}

// callLocked allocates the next request id, frames the request, and
// transmits it. The callback is registered before the write so a
// synchronously delivered response cannot beat the registration.
func (s *Session) callLocked(typ string, fields []wire.Field, cb Callback, ctx any) (uint64, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	s.seq++
	id := s.seq
	data, err := wire.Marshal(id, typ, fields)
	if err != nil {
		return 0, err
	}
	if cb != nil {
		s.calls.register(id, cb, ctx)
	}
	s.log.Debug().Uint64("id", id).Str("frame_type", typ).Msg("send")
	if err := s.conn.WriteMessage(context.Background(), data); err != nil {
		if cb != nil {
			s.calls.resolve(id)
		}
		return 0, fmt.Errorf("write failed: %w", err)
	}
	return id, nil
}

// readLoop decodes inbound frames one at a time, in arrival order, for
// the lifetime of one connection.
func (s *Session) readLoop(conn transport.Conn) {
	for {
		data, err := conn.ReadMessage(context.Background())
		if err != nil {
			s.teardown(conn, fmt.Errorf("connection closed: %w", err))
			return
		}
		if err := s.handleFrame(data); err != nil {
			// malformed frames are a protocol violation, fatal to the
			// connection
			s.teardown(conn, err)
			return
		}
	}
}

// handleFrame routes one inbound frame: correlated responses resolve
// their pending call, typed frames go to the event router.
func (s *Session) handleFrame(data []byte) error {
	in, err := wire.ParseInbound(data)
	if err != nil {
		return err
	}

	if in.ReplyTo != nil {
		s.mu.Lock()
		call := s.calls.resolve(*in.ReplyTo)
		s.mu.Unlock()
		if call == nil {
			s.log.Debug().Uint64("reply_to", *in.ReplyTo).Msg("response for unknown call")
			return nil
		}
		if in.OK {
			call.cb(s, call.ctx, okResult(in.Payload))
		} else {
			msg := in.Error
			if msg == "" {
				msg = "unknown error"
			}
			call.cb(s, call.ctx, errResult(msg))
		}
		return nil
	}

	s.dispatchEvent(in.Type, in.Payload)
	return nil
}

// teardown clears the connection state, cancels every pending call with
// the cancelled outcome, and reports the loss to the session owner.
// Safe to call from multiple goroutines; only the first caller for a
// given connection does the work.
func (s *Session) teardown(conn transport.Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	stop, done := s.pingStop, s.pingDone
	s.pingStop, s.pingDone = nil, nil
	s.mu.Unlock()

	// the keepalive must be fully stopped before connection state is
	// released
	if stop != nil {
		close(stop)
		<-done
	}

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	drained := s.calls.cancelAll()
	s.mu.Unlock()

	_ = conn.Close()
	for _, call := range drained {
		call.cb(s, call.ctx, cancelledResult())
	}

	s.log.Warn().Err(cause).Int("cancelled_calls", len(drained)).Msg("connection lost")
	select {
	case s.disconnects <- cause:
	default:
	}
}

// Connect issues the rtm.connect bootstrap request over the stream. The
// response carries the session's own user and team identity; recording
// them advances the login sequencer.
func (s *Session) Connect() error {
	_, err := s.Call("rtm.connect", []wire.Field{
		wire.Bool("batch_presence_aware", true),
		wire.Bool("presence_sub", true),
	}, connectDone, nil)
	return err
}

func connectDone(s *Session, _ any, res Result) {
	if res.Cancelled() {
		return
	}
	if msg := res.ErrMessage(); msg != "" {
		s.log.Error().Str("error", msg).Msg("rtm.connect failed")
		return
	}

	var resp struct {
		URL  string `json:"url"`
		Self struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"self"`
		Team Team `json:"team"`
	}
	if err := json.Unmarshal(res.Payload(), &resp); err != nil {
		s.log.Error().Err(err).Msg("malformed rtm.connect response")
		return
	}

	s.mu.Lock()
	s.self = s.upsertUserLocked(resp.Self.ID, resp.Self.Name)
	s.team = resp.Team
	s.mu.Unlock()

	s.log.Info().
		Str("self", resp.Self.ID).
		Str("team", resp.Team.Domain).
		Msg("rtm session established")
	s.login.Advance()
}
