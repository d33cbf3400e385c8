package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// wsConn adapts a gobwas/ws client connection to Conn.
type wsConn struct {
	conn   net.Conn
	rw     io.ReadWriter
	remote string

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// Dial connects to the websocket endpoint at url.
func Dial(ctx context.Context, url string) (Conn, error) {
	conn, br, _, err := ws.DefaultDialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &wsConn{conn: conn, remote: conn.RemoteAddr().String()}
	// data the server pushed during the handshake sits in br; keep
	// reading through it. Control-frame replies share the write lock
	// with application writes.
	var r io.Reader = conn
	if br != nil {
		r = br
	}
	c.rw = struct {
		io.Reader
		io.Writer
	}{r, lockedWriter{c}}
	return c, nil
}

// lockedWriter serializes wsutil's control-frame replies with the
// connection's own writes.
type lockedWriter struct {
	c *wsConn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	for {
		data, op, err := wsutil.ReadServerData(c.rw)
		if err != nil {
			if c.isClosed() {
				return nil, ErrClosed
			}
			return nil, err
		}
		// the protocol is text frames only; anything else is dropped
		if op == ws.OpText {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(ctx context.Context, data []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientText(c.conn, data)
}

func (c *wsConn) WritePong(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpPong, nil)
}

func (c *wsConn) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	c.writeMu.Lock()
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, nil)
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.remote
}

func (c *wsConn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}
