package relay

import (
	"context"
	"io"
)

// Connection is one endpoint of a relayed session: a TCP socket or a WebSocket.
// Read returns io.EOF once the peer has finished (FIN or close frame).
// Close on a WebSocket sends a normal-closure close frame before dropping the socket.
type Connection interface {
	io.ReadWriteCloser
}

// Listener accepts inbound connections for the acceptance loop
type Listener interface {
	// Accept waits for and returns the next connection.
	// It returns ctx.Err() once ctx is done.
	Accept(ctx context.Context) (Connection, error)

	// Close releases the underlying resource.
	// Any blocked Accept operations will be unblocked and return errors
	Close() error

	// Addr returns the listener's network address
	Addr() string
}

// Dialer opens the outbound side of a session
type Dialer interface {
	// Dial establishes a connection to the fixed destination
	Dial(ctx context.Context) (Connection, error)

	// Target describes the destination, for logs
	Target() string
}
