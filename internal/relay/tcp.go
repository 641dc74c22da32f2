package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// MinListenBacklog is the smallest accept backlog a TCP listener is bound with
const MinListenBacklog = 128

// TCPListener accepts plaintext TCP clients
type TCPListener struct {
	ln     *net.TCPListener
	mu     sync.Mutex
	closed bool
}

// ListenTCP binds addr with the given accept backlog (raised to MinListenBacklog)
func ListenTCP(addr string, backlog int) (*TCPListener, error) {
	if backlog < MinListenBacklog {
		backlog = MinListenBacklog
	}

	ln, err := listenTCP(addr, backlog)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &TCPListener{ln: ln}, nil
}

// Accept waits for the next TCP client. Cancelling ctx unblocks it by
// expiring the listener deadline.
func (l *TCPListener) Accept(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A previous cancelled Accept leaves the deadline in the past
	_ = l.ln.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = l.ln.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	conn, err := l.ln.AcceptTCP()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, err
	}

	return conn, nil
}

// Close closes the listening socket
func (l *TCPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	return l.ln.Close()
}

// Addr returns the bound address
func (l *TCPListener) Addr() string {
	return l.ln.Addr().String()
}

// TCPDialer dials a fixed host:port
type TCPDialer struct {
	addr   string
	dialer net.Dialer
}

// NewTCPDialer creates a dialer for host:port
func NewTCPDialer(host string, port int) *TCPDialer {
	return &TCPDialer{
		addr: net.JoinHostPort(host, fmt.Sprintf("%d", port)),
	}
}

// Dial opens a TCP connection to the target
func (d *TCPDialer) Dial(ctx context.Context) (Connection, error) {
	conn, err := d.dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Target returns host:port
func (d *TCPDialer) Target() string {
	return d.addr
}

var _ Listener = (*TCPListener)(nil)
var _ Dialer = (*TCPDialer)(nil)
