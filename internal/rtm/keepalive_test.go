package rtm

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// keepaliveHarness builds a session with a fast keepalive and a
// controllable idle state.
func keepaliveHarness(t *testing.T, idle time.Duration) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	s := NewSession(Options{
		IdleTime:     func() time.Duration { return idle },
		PingInterval: 20 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	s.Attach(conn)
	t.Cleanup(s.Close)
	return s, conn
}

func TestKeepalive_ActiveSendsTickle(t *testing.T) {
	s, conn := keepaliveHarness(t, 0)

	f := conn.frame(t)
	if f["type"].(string) != "tickle" {
		t.Fatalf("Expected tickle frame, got %v", f)
	}
	if _, ok := f["id"]; !ok {
		t.Error("Tickle should carry a request id")
	}

	// any response is acceptable, so no call is left pending
	s.mu.Lock()
	pending := s.calls.len()
	s.mu.Unlock()
	if pending != 0 {
		t.Errorf("Keepalive registered %d pending calls, want 0", pending)
	}
}

func TestKeepalive_IdleSendsPong(t *testing.T) {
	_, conn := keepaliveHarness(t, 5*time.Minute)

	select {
	case <-conn.pongs:
	case <-time.After(2 * time.Second):
		t.Fatal("No pong sent while idle")
	}
	// the probe is uncorrelated: no frame goes out
	conn.noFrame(t)
}

func TestKeepalive_NilIdleFuncMeansActive(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(Options{
		PingInterval: 20 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	s.Attach(conn)
	t.Cleanup(s.Close)

	f := conn.frame(t)
	if f["type"].(string) != "tickle" {
		t.Errorf("Expected tickle frame, got %v", f)
	}
}

func TestKeepalive_StopsOnTeardown(t *testing.T) {
	s, conn := keepaliveHarness(t, 0)
	conn.frame(t)

	s.Close()
	waitFor(t, func() bool { return !s.Connected() })

	// drain anything written before the teardown completed
	for {
		select {
		case <-conn.out:
			continue
		case <-time.After(100 * time.Millisecond):
		}
		break
	}

	select {
	case data := <-conn.out:
		t.Errorf("Keepalive fired after teardown: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}
