package rtm

import (
	"context"
	"time"
)

// startKeepaliveLocked launches the liveness prober for the current
// connection. teardown stops it synchronously before releasing the
// connection state, so a probe never races teardown.
func (s *Session) startKeepaliveLocked() {
	stop := make(chan struct{})
	done := make(chan struct{})
	s.pingStop, s.pingDone = stop, done
	go s.keepaliveLoop(stop, done)
}

func (s *Session) keepaliveLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.keepalive()
		}
	}
}

// keepalive probes the connection once: a correlated no-op request
// while the user is actively present, a bare pong frame otherwise. The
// no-op carries a request id but registers no pending call, since any
// response is acceptable.
func (s *Session) keepalive() {
	active := s.idle == nil || s.idle() == 0

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return
	}
	if active {
		if _, err := s.callLocked("tickle", nil, nil, nil); err != nil {
			s.log.Debug().Err(err).Msg("keepalive not sent")
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := conn.WritePong(context.Background()); err != nil {
		s.log.Debug().Err(err).Msg("keepalive pong not sent")
	}
}
