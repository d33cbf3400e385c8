// Package transport provides the websocket connection the session core
// reads frames from and writes frames to.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned for operations on a connection that has been
// closed. A closed connection is not reusable.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a single bidirectional text-frame connection. Reads and
// writes are independent; writes are internally serialized.
type Conn interface {
	// ReadMessage blocks until the next complete text frame arrives.
	// It returns the transport error once the connection closes.
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteMessage sends one complete text frame.
	WriteMessage(ctx context.Context, data []byte) error

	// WritePong sends an unsolicited pong control frame, used as the
	// uncorrelated liveness probe while the user is idle.
	WritePong(ctx context.Context) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the server address for logging.
	RemoteAddr() string
}
